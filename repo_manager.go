package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	RevokedTokens() *BunRevoker
}

type mngr struct {
	db            *bun.DB
	users         Users
	revokedTokens *BunRevoker
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		revokedTokens: NewBunRevoker(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.revokedTokens == nil {
		return errors.New("repository revoked tokens should be initialized")
	}

	return nil
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return m.db.RunInTx(ctx, opts, fn)
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) RevokedTokens() *BunRevoker {
	return m.revokedTokens
}
