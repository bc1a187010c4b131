package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/dev-jds/auth-app"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestTokenService(clock clockwork.Clock) *auth.TokenServiceImpl {
	return auth.NewTokenService(
		[]byte("test-signing-key"),
		60,
		"test-issuer",
		jwt.ClaimStrings{"test:audience"},
		nil,
	).WithClock(clock)
}

func TestTokenService_RoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	identity := TestIdentity{
		id:   uuid.New().String(),
		nik:  "1234567890123456",
		role: "admin",
	}

	token, err := svc.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, identity.ID(), claims.Subject())
	assert.Equal(t, identity.ID(), claims.UserID())
	assert.Equal(t, "admin", claims.Role())
	assert.Equal(t, "test-issuer", claims.Issuer())
	assert.NotEmpty(t, claims.TokenID())

	// whole-second timestamps, nbf pinned to iat, exp exactly TTL later
	assert.Equal(t, testEpoch.Unix(), claims.IssuedAt().Unix())
	assert.Equal(t, claims.IssuedAt(), claims.NotBefore())
	assert.Equal(t, svc.TTL(), claims.Expires().Sub(claims.IssuedAt()))
}

func TestTokenService_UniqueTokenIDs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	identity := TestIdentity{id: uuid.New().String(), role: "user"}

	first, err := svc.Generate(identity)
	require.NoError(t, err)
	second, err := svc.Generate(identity)
	require.NoError(t, err)

	firstClaims, err := svc.Validate(first)
	require.NoError(t, err)
	secondClaims, err := svc.Validate(second)
	require.NoError(t, err)

	// same instant, same identity, still distinct tokens
	assert.NotEqual(t, firstClaims.TokenID(), secondClaims.TokenID())
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	identity := TestIdentity{id: uuid.New().String(), role: "user"}

	token, err := svc.Generate(identity)
	require.NoError(t, err)

	t.Run("valid one second before expiry", func(t *testing.T) {
		clock.Advance(svc.TTL() - time.Second)
		_, err := svc.Validate(token)
		assert.NoError(t, err)
	})

	t.Run("rejected exactly at expiry", func(t *testing.T) {
		clock.Advance(time.Second)
		_, err := svc.Validate(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, auth.ErrTokenExpired))
		assert.Equal(t, auth.TextCodeTokenExpired, auth.TextCode(err))
	})
}

func TestTokenService_NotBeforeBoundary(t *testing.T) {
	issuerClock := clockwork.NewFakeClockAt(testEpoch)
	issuerSvc := newTestTokenService(issuerClock)

	identity := TestIdentity{id: uuid.New().String(), role: "user"}

	token, err := issuerSvc.Generate(identity)
	require.NoError(t, err)

	t.Run("valid exactly at nbf", func(t *testing.T) {
		svc := newTestTokenService(clockwork.NewFakeClockAt(testEpoch))
		_, err := svc.Validate(token)
		assert.NoError(t, err)
	})

	t.Run("rejected before nbf", func(t *testing.T) {
		svc := newTestTokenService(clockwork.NewFakeClockAt(testEpoch.Add(-time.Minute)))
		_, err := svc.Validate(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, auth.ErrTokenNotYetValid))
		assert.Equal(t, auth.TextCodeTokenNotYetValid, auth.TextCode(err))
	})
}

func TestTokenService_SignatureFailures(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	identity := TestIdentity{id: uuid.New().String(), role: "user"}

	t.Run("token signed with a different key", func(t *testing.T) {
		other := auth.NewTokenService(
			[]byte("some-other-key"),
			60,
			"test-issuer",
			jwt.ClaimStrings{"test:audience"},
			nil,
		).WithClock(clock)

		token, err := other.Generate(identity)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, auth.ErrTokenInvalid))
		assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
	})

	t.Run("unsigned token is rejected without payload inspection", func(t *testing.T) {
		claims := &auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   identity.ID(),
				Audience:  jwt.ClaimStrings{"test:audience"},
				IssuedAt:  jwt.NewNumericDate(clock.Now()),
				NotBefore: jwt.NewNumericDate(clock.Now()),
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
				ID:        uuid.NewString(),
			},
		}

		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, auth.ErrTokenInvalid))
	})

	t.Run("expired token with a bad signature fails on the signature", func(t *testing.T) {
		other := auth.NewTokenService(
			[]byte("some-other-key"),
			60,
			"test-issuer",
			jwt.ClaimStrings{"test:audience"},
			nil,
		).WithClock(clock)

		token, err := other.Generate(identity)
		require.NoError(t, err)

		clock.Advance(svc.TTL() + time.Hour)

		_, err = svc.Validate(token)
		require.Error(t, err)
		assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
	})
}

func TestTokenService_TamperSweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	token, err := svc.Generate(TestIdentity{id: uuid.New().String(), role: "user"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// flipping any single byte of the payload must read as a signature
	// failure, even when the mutation also breaks the base64 or JSON
	// underneath
	payload := parts[1]
	for i := 0; i < len(payload); i++ {
		replacement := byte('A')
		if payload[i] == replacement {
			replacement = 'B'
		}

		mutated := payload[:i] + string(replacement) + payload[i+1:]
		tampered := parts[0] + "." + mutated + "." + parts[2]

		_, err := svc.Validate(tampered)
		require.Error(t, err, "payload byte %d", i)
		assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err), "payload byte %d", i)
	}

	t.Run("header tampering reads the same way", func(t *testing.T) {
		mutated := "B" + parts[0][1:]
		if parts[0][0] == 'B' {
			mutated = "A" + parts[0][1:]
		}

		_, err := svc.Validate(mutated + "." + parts[1] + "." + parts[2])
		require.Error(t, err)
		assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
	})

	t.Run("signature tampering reads the same way", func(t *testing.T) {
		sig := parts[2]
		replacement := byte('A')
		if sig[0] == replacement {
			replacement = 'B'
		}

		_, err := svc.Validate(parts[0] + "." + parts[1] + "." + string(replacement) + sig[1:])
		require.Error(t, err)
		assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
	})
}

func TestTokenService_WrongAudience(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	other := auth.NewTokenService(
		[]byte("test-signing-key"),
		60,
		"test-issuer",
		jwt.ClaimStrings{"other:audience"},
		nil,
	).WithClock(clock)

	token, err := other.Generate(TestIdentity{id: uuid.New().String(), role: "user"})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrTokenInvalid))
}

func TestTokenService_ValidateWithContext(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)

	revoker := &ctxCapturingRevoker{}
	svc := newTestTokenService(clock).WithRevoker(revoker)

	token, err := svc.Generate(TestIdentity{id: uuid.New().String(), role: "user"})
	require.NoError(t, err)

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-scoped")

	_, err = svc.ValidateWithContext(ctx, token)
	require.NoError(t, err)

	// the revocation lookup sees the caller's context, not a fresh one
	require.NotNil(t, revoker.lastCtx)
	assert.Equal(t, "request-scoped", revoker.lastCtx.Value(ctxKey{}))
}

type ctxCapturingRevoker struct {
	lastCtx context.Context
}

func (r *ctxCapturingRevoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	r.lastCtx = ctx
	return nil
}

func (r *ctxCapturingRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.lastCtx = ctx
	return false, nil
}

func (r *ctxCapturingRevoker) PurgeExpired(ctx context.Context, now time.Time) error {
	r.lastCtx = ctx
	return nil
}

func TestTokenService_MalformedTokens(t *testing.T) {
	svc := newTestTokenService(clockwork.NewFakeClockAt(testEpoch))

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"not a token", "not-a-token"},
		{"wrong segment count", "a.b"},
		{"garbage segments", "!!!.###.$$$"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(tc.token)
			require.Error(t, err)
			assert.Equal(t, auth.TextCodeTokenMalformed, auth.TextCode(err))
		})
	}
}

func TestTokenService_MissingRequiredClaims(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	// properly signed but missing subject and jti
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test:audience"},
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			NotBefore: jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}

	token, err := svc.SignClaims(claims)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrTokenMalformed))
}

func TestTokenService_WrongIssuer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	svc := newTestTokenService(clock)

	other := auth.NewTokenService(
		[]byte("test-signing-key"),
		60,
		"other-issuer",
		jwt.ClaimStrings{"test:audience"},
		nil,
	).WithClock(clock)

	token, err := other.Generate(TestIdentity{id: uuid.New().String(), role: "user"})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
}

func TestTokenService_RevokedToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	revoker := auth.NewMemoryRevoker()
	svc := newTestTokenService(clock).WithRevoker(revoker)

	token, err := svc.Generate(TestIdentity{id: uuid.New().String(), role: "user"})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	require.NoError(t, revoker.Revoke(context.Background(), claims.TokenID(), claims.Expires()))

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrTokenRevoked))
	assert.Equal(t, auth.TextCodeTokenRevoked, auth.TextCode(err))
}
