package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the verified, read-only view of a token's payload
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	TokenID() string
	Issuer() string
	IssuedAt() time.Time
	NotBefore() time.Time
	Expires() time.Time
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID, falling back to the subject
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role claim
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// TokenID returns the unique per-issuance jti
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Issuer returns the issuer claim
func (c *JWTClaims) Issuer() string {
	return c.RegisteredClaims.Issuer
}

// HasRole checks if the claims carry a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the carried role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// NotBefore returns the not-before time
func (c *JWTClaims) NotBefore() time.Time {
	if c.RegisteredClaims.NotBefore != nil {
		return c.RegisteredClaims.NotBefore.Time
	}
	return time.Time{}
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// wellFormed reports whether the claims carry every field issuance promises.
// Validate runs it after signature and time checks.
func (c *JWTClaims) wellFormed() bool {
	return c.RegisteredClaims.Subject != "" &&
		c.RegisteredClaims.ID != "" &&
		c.RegisteredClaims.IssuedAt != nil &&
		c.RegisteredClaims.ExpiresAt != nil &&
		c.RegisteredClaims.NotBefore != nil
}

// DecodedPayload is the introspection shape returned by the profile endpoint.
type DecodedPayload struct {
	Iss  string   `json:"iss"`
	Sub  string   `json:"sub"`
	Aud  []string `json:"aud,omitempty"`
	Iat  int64    `json:"iat"`
	Nbf  int64    `json:"nbf"`
	Exp  int64    `json:"exp"`
	Jti  string   `json:"jti"`
	Role string   `json:"role"`
}

// DecodePayload flattens verified claims into their wire-level view,
// timestamps as whole seconds since the Unix epoch.
func DecodePayload(claims AuthClaims) DecodedPayload {
	p := DecodedPayload{
		Iss:  claims.Issuer(),
		Sub:  claims.Subject(),
		Jti:  claims.TokenID(),
		Role: claims.Role(),
		Iat:  claims.IssuedAt().Unix(),
		Nbf:  claims.NotBefore().Unix(),
		Exp:  claims.Expires().Unix(),
	}

	if jwtClaims, ok := claims.(*JWTClaims); ok {
		p.Aud = append(p.Aud, jwtClaims.RegisteredClaims.Audience...)
	}

	return p
}
