package jwtware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

var defaultTokenLookup = "header:" + fiber.HeaderAuthorization

// ErrTokenAbsent is returned when no extractor finds a bearer token on the
// request. The boundary layer maps it to a 401 like every other auth failure.
var ErrTokenAbsent = errors.New("token absent", errors.CategoryAuth).
	WithTextCode("token_absent").
	WithCode(errors.CodeUnauthorized)

// TokenValidator validates tokens without an import cycle back into the auth
// package. It mirrors auth.TokenService.ValidateWithContext; the gate passes
// the request context so revocation lookups stay bound to the request.
type TokenValidator interface {
	Validate(ctx context.Context, tokenString string) (AuthClaims, error)
}

// AuthClaims mirrors the auth package claims interface for the same reason.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	TokenID() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

type Config struct {
	// Filter skips the middleware when it returns true
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   func(*fiber.Ctx, error) error
	// ContextKey is where verified claims land in c.Locals
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// MinimumRole optionally requires at least this role level
	MinimumRole string

	// ContextEnricher propagates claims to the standard Go context after
	// successful validation, so downstream code can read them without fiber.
	ContextEnricher func(ctx context.Context, claims AuthClaims) context.Context
}

// New builds the bearer-token gate: extract the token, verify it, attach the
// resolved claims to the request, or reject.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		claims, err := cfg.TokenValidator.Validate(c.UserContext(), raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if cfg.MinimumRole != "" && !claims.IsAtLeast(cfg.MinimumRole) {
			return cfg.ErrorHandler(c, errors.New(
				fmt.Sprintf("access denied: minimum role %q required", cfg.MinimumRole),
				errors.CategoryAuthz,
			).WithCode(errors.CodeForbidden))
		}

		c.Locals(cfg.ContextKey, claims)
		c.Locals(rawTokenKey, raw)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))
		}

		return cfg.SuccessHandler(c)
	}
}

const rawTokenKey = "jwtware_raw_token"

// ClaimsFromContext returns the verified claims the gate stored on the request.
func ClaimsFromContext(c *fiber.Ctx, contextKey string) (AuthClaims, bool) {
	if contextKey == "" {
		contextKey = "user"
	}
	claims, ok := c.Locals(contextKey).(AuthClaims)
	return claims, ok
}

// RawTokenFromContext returns the bearer token string the gate validated.
func RawTokenFromContext(c *fiber.Ctx) (string, bool) {
	raw, ok := c.Locals(rawTokenKey).(string)
	return raw, ok
}

func ExtractRawToken(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// GetExtractors parses a lookup string such as
// "header:Authorization,cookie:jwt,query:auth_token,param:token"
// into the ordered extractor chain.
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) < 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts the token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenAbsent
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenAbsent
	}
}

// jwtFromQuery returns a function that extracts the token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenAbsent
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts the token from a route param.
func jwtFromParam(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrTokenAbsent
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts the token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenAbsent
		}
		return token, nil
	}
}
