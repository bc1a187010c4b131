package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	revoker         TokenRevoker
	clock           clockwork.Clock
	logger          Logger
}

// NewTokenService creates a new TokenService instance. tokenExpiration is the
// time-to-live in minutes.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		revoker:         noopRevoker{},
		clock:           clockwork.NewRealClock(),
		logger:          logger,
	}
}

// WithRevoker wires a revocation index consulted after signature and time checks.
func (ts *TokenServiceImpl) WithRevoker(revoker TokenRevoker) *TokenServiceImpl {
	if revoker != nil {
		ts.revoker = revoker
	}
	return ts
}

// WithClock overrides the clock used for issuance and validation.
func (ts *TokenServiceImpl) WithClock(clock clockwork.Clock) *TokenServiceImpl {
	if clock != nil {
		ts.clock = clock
	}
	return ts
}

// TTL returns the configured token lifetime
func (ts *TokenServiceImpl) TTL() time.Duration {
	return time.Duration(ts.tokenExpiration) * time.Minute
}

// Generate creates a signed access token for the given identity. The expiry is
// exactly issued-at plus the configured TTL, and not-before equals issued-at.
func (ts *TokenServiceImpl) Generate(identity Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity is required", errors.CategoryBadInput)
	}

	now := ts.clock.Now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.TTL())),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and verifies a token string, returning structured claims.
// The signature is checked before any payload content is trusted; time checks
// use an exclusive expiry and an inclusive not-before at whole-second
// resolution. Revocation is consulted last.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	return ts.ValidateWithContext(context.Background(), tokenString)
}

// ValidateWithContext is Validate with the caller's context threaded through
// to the revocation lookup, so a request deadline bounds the store round trip.
func (ts *TokenServiceImpl) ValidateWithContext(ctx context.Context, tokenString string) (AuthClaims, error) {
	if err := ts.verifySignature(tokenString); err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.clock.Now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode claims")
		return nil, ErrTokenMalformed
	}

	if !claims.wellFormed() {
		return nil, ErrTokenMalformed
	}

	revoked, err := ts.revoker.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "revocation lookup failed")
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// verifySignature checks the MAC over header.payload before any payload
// decoding happens. Past this point a parse failure is structural, never
// forgery: a token whose bytes were altered anywhere dies here as
// ErrTokenInvalid, regardless of whether the mutation also broke the
// base64 or JSON encoding underneath.
func (ts *TokenServiceImpl) verifySignature(tokenString string) error {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ErrTokenMalformed
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrTokenMalformed
	}

	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, ts.signingKey); err != nil {
		return ErrTokenInvalid
	}

	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	default:
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(errors.CodeUnauthorized)
	}
}

// ensureTokenID assigns a fresh unique jti when the claims carry none.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

type noopRevoker struct{}

func (noopRevoker) Revoke(context.Context, string, time.Time) error { return nil }

func (noopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }

func (noopRevoker) PurgeExpired(context.Context, time.Time) error { return nil }
