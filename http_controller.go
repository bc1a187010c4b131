package auth

import (
	"context"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/dev-jds/auth-app/middleware/jwtware"
)

// FieldError is the closed per-field validation failure shape. Clients only
// ever see field and reason, never validator internals.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FormatValidationErrors flattens an ozzo validation result into a stable,
// field-sorted list.
func FormatValidationErrors(err error) []FieldError {
	verrs, ok := err.(validation.Errors)
	if !ok {
		return []FieldError{{Field: "payload", Reason: err.Error()}}
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]FieldError, 0, len(fields))
	for _, field := range fields {
		out = append(out, FieldError{Field: field, Reason: verrs[field].Error()})
	}
	return out
}

type AuthControllerRoutes struct {
	Register string
	Login    string
	Token    string
	Refresh  string
	Profile  string
	Logout   string
}

type AuthController struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Auther *Auther
	Config Config
	Routes *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register: "/register",
			Login:    "/login",
			Token:    "/token",
			Refresh:  "/refresh",
			Profile:  "/user-profile",
			Logout:   "/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the versioned API on the app: three public
// endpoints and three behind the bearer gate.
func RegisterAuthRoutes(app *fiber.App, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	v1 := app.Group("/api/v1")

	v1.Post(controller.Routes.Register, controller.RegisterPost).Name("register.post")
	v1.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")
	v1.Get(controller.Routes.Token, controller.TokenProbe).Name("token.get")

	protected := v1.Group("", controller.Protected())
	protected.Post(controller.Routes.Refresh, controller.RefreshPost).Name("refresh.post")
	protected.Get(controller.Routes.Profile, controller.ProfileGet).Name("user-profile.get")
	protected.Post(controller.Routes.Logout, controller.LogoutPost).Name("sign-out.post")

	return controller
}

// Protected returns the bearer-token gate for the routes that require a
// verified session.
func (a *AuthController) Protected() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenValidator: tokenValidator{a.Auther.TokenService()},
		ErrorHandler:   a.authErrorHandler,
		ContextKey:     a.Config.GetContextKey(),
		TokenLookup:    a.Config.GetTokenLookup(),
		AuthScheme:     a.Config.GetAuthScheme(),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if authClaims, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, authClaims)
			}
			return ctx
		},
	})
}

// tokenValidator bridges the token service into the middleware contract.
type tokenValidator struct {
	svc TokenService
}

func (v tokenValidator) Validate(ctx context.Context, raw string) (jwtware.AuthClaims, error) {
	claims, err := v.svc.ValidateWithContext(ctx, raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// authErrorHandler maps every authentication failure to a 401 with the coarse
// failure kind as the only payload. A gate failure is never a server error.
func (a *AuthController) authErrorHandler(c *fiber.Ctx, err error) error {
	code := TextCode(err)
	if code == "" {
		code = TextCodeUnauthorized
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": code,
	})
}

// errorHandler maps non-gate errors by category.
func (a *AuthController) errorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		a.Logger.Error("unexpected error: %s", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error",
		})
	}

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryRateLimit:
		return a.authErrorHandler(c, err)
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   TextCodeValidationFailed,
			"message": richErr.Message,
		})
	case goerrors.CategoryConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   TextCodeIdentifierTaken,
			"message": richErr.Message,
		})
	case goerrors.CategoryNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not_found",
		})
	default:
		a.Logger.Error("internal error: %s", richErr.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error",
		})
	}
}

// LoginRequest payload
type LoginRequest struct {
	NIK      string `form:"nik" json:"nik"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.NIK
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.NIK,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(6, 100),
		),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %s", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed_request",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  TextCodeValidationFailed,
			"fields": FormatValidationErrors(err),
		})
	}

	result, err := a.Auther.Login(c.UserContext(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		// invalid credentials and rate limiting both end here; the response
		// never says which
		if IsAuthFailure(err) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return a.errorHandler(c, err)
	}

	response := fiber.Map{
		"access_token": result.AccessToken,
		"token_type":   result.TokenType,
		"expires_in":   result.ExpiresIn,
	}

	if user, err := a.Repo.Users().GetByID(c.UserContext(), result.Identity.ID()); err == nil {
		response["user"] = user
	} else {
		a.Logger.Warn("login user lookup failed: %s", err)
	}

	return c.JSON(response)
}

// RegisterRequest payload
type RegisterRequest struct {
	NIK      string `form:"nik" json:"nik"`
	Role     string `form:"role" json:"role"`
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.NIK,
			validation.Required,
			validation.Length(16, 16),
			is.Digit,
		),
		validation.Field(
			&r.Role,
			validation.Required,
			validation.In(string(RoleUser), string(RoleAdmin)),
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(6, 100),
		),
	)
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register parse payload: %s", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed_request",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  TextCodeValidationFailed,
			"fields": FormatValidationErrors(err),
		})
	}

	var created *User
	req := RegisterUserMessage{
		NIK:      payload.NIK,
		Role:     payload.Role,
		Password: payload.Password,
		OnResponse: func(user *User) {
			created = user
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo)
	if err := registerUser.Execute(c.UserContext(), req); err != nil {
		a.Logger.Error("register user: %s", err)
		return a.errorHandler(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User successfully registered",
		"user":    created,
	})
}

// TokenProbe reports whether the request carries a currently valid token.
// It doubles as the landing route for rejected unauthenticated requests.
func (a *AuthController) TokenProbe(c *fiber.Ctx) error {
	extractors := jwtware.GetExtractors(a.Config.GetTokenLookup(), a.Config.GetAuthScheme())

	raw, err := jwtware.ExtractRawToken(c, extractors)
	if err != nil || raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "not_logged_in",
		})
	}

	if _, err := a.Auther.SessionFromToken(raw); err != nil {
		return a.authErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"logged_in": true,
	})
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	raw, ok := jwtware.RawTokenFromContext(c)
	if !ok {
		return a.authErrorHandler(c, ErrTokenAbsent)
	}

	result, err := a.Auther.Refresh(c.UserContext(), raw)
	if err != nil {
		a.Logger.Error("refresh: %s", err)
		return a.errorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"access_token": result.AccessToken,
		"token_type":   result.TokenType,
		"expires_in":   result.ExpiresIn,
	})
}

func (a *AuthController) ProfileGet(c *fiber.Ctx) error {
	claims, ok := jwtware.ClaimsFromContext(c, a.Config.GetContextKey())
	if !ok {
		return a.authErrorHandler(c, ErrTokenAbsent)
	}

	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return a.authErrorHandler(c, ErrTokenInvalid)
	}

	user, err := a.Repo.Users().GetByID(c.UserContext(), authClaims.UserID())
	if err != nil {
		a.Logger.Error("profile user lookup: %s", err)
		// valid token for a user that no longer exists reads as unauthorized,
		// not as a server error
		if goerrors.IsNotFound(err) {
			return a.authErrorHandler(c, goerrors.New("identity no longer exists", goerrors.CategoryAuth))
		}
		return a.errorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"user":   user,
		"decode": DecodePayload(authClaims),
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	raw, ok := jwtware.RawTokenFromContext(c)
	if !ok {
		return a.authErrorHandler(c, ErrTokenAbsent)
	}

	if err := a.Auther.Logout(c.UserContext(), raw); err != nil {
		a.Logger.Error("logout: %s", err)
		return a.errorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "User successfully signed out",
	})
}
