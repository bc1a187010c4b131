package auth

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemoryRevoker is an in-process revocation index. It is safe for concurrent
// use; reads take the common path and never block behind purges.
type MemoryRevoker struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryRevoker creates an empty in-memory revocation index.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{
		revoked: make(map[string]time.Time),
	}
}

// Revoke records a token ID until its natural expiry passes.
func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required", errors.CategoryBadInput)
	}

	m.mu.Lock()
	m.revoked[tokenID] = expiresAt
	m.mu.Unlock()
	return nil
}

// IsRevoked reports whether the token ID is in the index.
func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.revoked[tokenID]
	m.mu.RUnlock()
	return ok, nil
}

// PurgeExpired drops entries whose expiry already passed; the codec rejects
// those tokens on time alone so the index no longer needs them.
func (m *MemoryRevoker) PurgeExpired(_ context.Context, now time.Time) error {
	m.mu.Lock()
	for id, expiresAt := range m.revoked {
		if !expiresAt.After(now) {
			delete(m.revoked, id)
		}
	}
	m.mu.Unlock()
	return nil
}

var _ TokenRevoker = (*MemoryRevoker)(nil)

// BunRevoker persists revoked token IDs so invalidation survives restarts and
// is shared across processes.
type BunRevoker struct {
	db *bun.DB
}

// NewBunRevoker creates a revocation index backed by the revoked_tokens table.
func NewBunRevoker(db *bun.DB) *BunRevoker {
	return &BunRevoker{db: db}
}

// Revoke records the token ID. Revoking the same ID twice is a no-op.
func (r *BunRevoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required", errors.CategoryBadInput)
	}

	record := &RevokedToken{
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (token_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist revoked token")
	}

	return nil
}

// RevokeForUser records the token ID along with the subject it belonged to.
func (r *BunRevoker) RevokeForUser(ctx context.Context, tokenID string, userID uuid.UUID, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required", errors.CategoryBadInput)
	}

	record := &RevokedToken{
		TokenID:   tokenID,
		UserID:    &userID,
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (token_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist revoked token")
	}

	return nil
}

// IsRevoked reports whether the token ID is in the index.
func (r *BunRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.token_id = ?", tokenID).
		Exists(ctx)
	if err != nil && err != sql.ErrNoRows {
		return false, errors.Wrap(err, errors.CategoryInternal, "revocation lookup failed")
	}
	return exists, nil
}

// PurgeExpired removes rows whose recorded expiry already passed.
func (r *BunRevoker) PurgeExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to purge revoked tokens")
	}
	return nil
}

var _ TokenRevoker = (*BunRevoker)(nil)
