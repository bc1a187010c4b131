package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "invalid_credentials"
	TextCodeUnauthorized       = "unauthorized"
	TextCodeTokenExpired       = "token_expired"
	TextCodeTokenInvalid       = "token_invalid"
	TextCodeTokenNotYetValid   = "token_not_yet_valid"
	TextCodeTokenMalformed     = "token_malformed"
	TextCodeTokenAbsent        = "token_absent"
	TextCodeTokenRevoked       = "token_revoked"
	TextCodeValidationFailed   = "validation_failed"
	TextCodeTooManyAttempts    = "too_many_login_attempts"
	TextCodeIdentifierTaken    = "identifier_taken"
)

// ErrInvalidCredentials covers both "unknown identifier" and "wrong password";
// the two are never distinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is returned for lookups of identities that do not exist.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode("identity_not_found").
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when a token is presented at or after its expiry.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid is returned when the signature does not verify. The payload
// is never inspected in that case.
var ErrTokenInvalid = errors.New("token signature invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenNotYetValid is returned when a token is presented before its nbf.
var ErrTokenNotYetValid = errors.New("token not yet valid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenNotYetValid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be parsed or is missing
// required claims.
var ErrTokenMalformed = errors.New("token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenAbsent is returned when a request carries no bearer token.
var ErrTokenAbsent = errors.New("token absent", errors.CategoryAuth).
	WithTextCode(TextCodeTokenAbsent).
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned when a token ID is found in the revocation index.
var ErrTokenRevoked = errors.New("token revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned once the attempt counter trips the
// cooldown window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrIdentifierTaken is returned on registration when the NIK already exists.
var ErrIdentifierTaken = errors.New("identifier already registered", errors.CategoryConflict).
	WithTextCode(TextCodeIdentifierTaken).
	WithCode(errors.CodeConflict)

// IsAuthFailure reports whether err belongs to the authentication taxonomy,
// i.e. should surface as a 401-class response.
func IsAuthFailure(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth || richErr.Category == errors.CategoryRateLimit
}

// TextCode extracts the coarse failure kind from an error, falling back to
// "unauthorized" for auth failures without one.
func TextCode(err error) string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return ""
	}
	if richErr.TextCode != "" {
		return richErr.TextCode
	}
	if richErr.Category == errors.CategoryAuth {
		return TextCodeUnauthorized
	}
	return ""
}
