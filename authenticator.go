package auth

import (
	"context"
	"reflect"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// TokenType is the scheme clients use to present access tokens
const TokenType = "bearer"

// Auther orchestrates the credential verifier and the token codec. It holds
// the only process-wide secret (the signing key, owned by the token service)
// and no per-token state.
type Auther struct {
	provider        IdentityProvider
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    *TokenServiceImpl
	revoker         TokenRevoker
	clock           clockwork.Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		tokenExpiration: opts.GetTokenExpiration(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
		revoker:         noopRevoker{},
		clock:           clockwork.NewRealClock(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		s.tokenService.logger = logger
	}
	return s
}

// WithRevoker wires the revocation index into both issuance bookkeeping and
// token validation.
func (s *Auther) WithRevoker(revoker TokenRevoker) *Auther {
	if revoker != nil {
		s.revoker = revoker
		s.tokenService.WithRevoker(revoker)
	}
	return s
}

// WithClock overrides the clock, propagated to the token service.
func (s *Auther) WithClock(clock clockwork.Clock) *Auther {
	if clock != nil {
		s.clock = clock
		s.tokenService.WithClock(clock)
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credential pair and issues a fresh access token. Every
// verifier failure propagates as-is; the boundary layer maps all of them to a
// 401-class response without detail.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*TokenResult, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %s", err)
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("Login token generation failed: %s", err)
		return nil, err
	}

	return &TokenResult{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int64(s.tokenService.TTL().Seconds()),
		Identity:    identity,
	}, nil
}

// Refresh mints a brand-new token from a currently valid one: new token-id,
// issued-at = now, same subject and role. The old token-id is revoked so a
// refreshed token cannot be replayed.
func (s *Auther) Refresh(ctx context.Context, rawToken string) (*TokenResult, error) {
	claims, err := s.tokenService.ValidateWithContext(ctx, rawToken)
	if err != nil {
		s.logger.Error("Refresh validation failed: %s", err)
		return nil, err
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("Refresh identity lookup failed: %s", err)
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	next := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.Subject(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenService.TTL())),
		},
		UID:      claims.UserID(),
		UserRole: claims.Role(),
	}

	ensureTokenID(&next.RegisteredClaims)

	token, err := s.tokenService.SignClaims(next)
	if err != nil {
		return nil, err
	}

	if err := s.revoker.Revoke(ctx, claims.TokenID(), claims.Expires()); err != nil {
		s.logger.Warn("Refresh could not revoke prior token %s: %s", claims.TokenID(), err)
	}

	return &TokenResult{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int64(s.tokenService.TTL().Seconds()),
		Identity:    identity,
	}, nil
}

// Logout invalidates the presented token immediately by recording its
// token-id in the revocation index.
func (s *Auther) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.tokenService.ValidateWithContext(ctx, rawToken)
	if err != nil {
		s.logger.Error("Logout validation failed: %s", err)
		return err
	}

	if err := s.revoker.Revoke(ctx, claims.TokenID(), claims.Expires()); err != nil {
		s.logger.Error("Logout revocation failed for %s: %s", claims.TokenID(), err)
		return err
	}

	return nil
}

// SessionFromToken decodes and verifies a raw token into claims
func (s *Auther) SessionFromToken(raw string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %s", err)
		return nil, err
	}

	return claims, nil
}

// IdentityFromClaims resolves the stored identity behind verified claims
func (s *Auther) IdentityFromClaims(ctx context.Context, claims AuthClaims) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("IdentityFromClaims lookup failed: %s", err)
		return nil, err
	}

	return identity, nil
}

var _ Authenticator = (*Auther)(nil)
