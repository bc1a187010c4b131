package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/dev-jds/auth-app"
)

// fakeUsers is a map-backed Users repository so controller and command tests
// run without a database.
type fakeUsers struct {
	mu    sync.Mutex
	byNIK map[string]*auth.User
	byID  map[string]*auth.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byNIK: make(map[string]*auth.User),
		byID:  make(map[string]*auth.User),
	}
}

var _ auth.Users = (*fakeUsers)(nil)

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, notFoundErr()
}

func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := uuid.Parse(identifier); err == nil {
		if user, ok := f.byID[identifier]; ok {
			return user, nil
		}
		return nil, notFoundErr()
	}

	if user, ok := f.byNIK[identifier]; ok {
		return user, nil
	}
	return nil, notFoundErr()
}

func (f *fakeUsers) ExistsByNIK(ctx context.Context, nik string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.byNIK[nik]
	return ok, nil
}

func (f *fakeUsers) Create(ctx context.Context, record *auth.User) (*auth.User, error) {
	return f.CreateTx(ctx, nil, record)
}

func (f *fakeUsers) CreateTx(ctx context.Context, tx bun.IDB, record *auth.User) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byNIK[record.NIK]; ok {
		return nil, goerrors.New("unique constraint violation", goerrors.CategoryConflict)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = auth.RoleUser
	}

	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}

	f.byNIK[record.NIK] = record
	f.byID[record.ID.String()] = record
	return record, nil
}

func (f *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now
	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	user.LoggedInAt = &now
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	return nil
}

func (f *fakeUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byID[id.String()]
	if !ok {
		return notFoundErr()
	}
	user.PasswordHash = passwordHash
	return nil
}

// fakeRepo satisfies RepositoryManager for tests that never touch SQL.
type fakeRepo struct {
	users *fakeUsers
}

var _ auth.RepositoryManager = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: newFakeUsers()}
}

func (f *fakeRepo) Validate() error { return nil }

func (f *fakeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Users() auth.Users { return f.users }

func (f *fakeRepo) RevokedTokens() *auth.BunRevoker { return nil }
