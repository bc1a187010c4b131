package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// UserTracker is the store we use to retrieve users during verification
type UserTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider verifies credentials against the user store. It is the only
// I/O-bound step in the token lifecycle and holds no state of its own.
type UserProvider struct {
	store  UserTracker
	logger Logger
}

// MaxLoginAttempts is the maximum number of failed attempts a user gets
// within the cooldown period
var MaxLoginAttempts = 5

// CoolDownPeriod is the window in which failed attempts accumulate
var CoolDownPeriod = "24h"

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	return &UserProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// VerifyIdentity will find the user, compare the password, and return the
// identity. Unknown identifier and wrong password collapse into the same
// failure so callers cannot enumerate registered identifiers.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if user.LoginAttemptAt != nil {
		elapsed, err := cooldownElapsed(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if elapsed {
			user.LoginAttempts = 0
		}
	}

	// too many attempts in the window, cool off
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrInvalidCredentials
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login: %s", err)
	}

	return NewIdentity(user), nil
}

// FindIdentityByIdentifier resolves an identity without touching credentials
func (u *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if user == nil {
		return nil, ErrIdentityNotFound
	}

	return NewIdentity(user), nil
}

// cooldownElapsed reports whether the last failed attempt is old enough for
// the counter to start over. The window uses time.ParseDuration syntax.
func cooldownElapsed(lastAttempt time.Time, window string) (bool, error) {
	duration, err := time.ParseDuration(window)
	if err != nil {
		return false, err
	}

	return !lastAttempt.After(time.Now().Add(-duration)), nil
}

var _ IdentityProvider = (*UserProvider)(nil)

type authIdentity struct {
	id        string
	nik       string
	role      string
	createdAt *time.Time
	updatedAt *time.Time
}

// NewIdentity projects a stored user onto the read-only identity view the
// issuer and codec consume. The credential hash never crosses this boundary.
func NewIdentity(user *User) Identity {
	return authIdentity{
		id:        user.ID.String(),
		nik:       user.NIK,
		role:      string(user.Role),
		createdAt: user.CreatedAt,
		updatedAt: user.UpdatedAt,
	}
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) NIK() string {
	return a.nik
}

func (a authIdentity) Role() string {
	return a.role
}

func (a authIdentity) CreatedAt() *time.Time {
	return a.createdAt
}

func (a authIdentity) UpdatedAt() *time.Time {
	return a.updatedAt
}

var _ Identity = authIdentity{}
