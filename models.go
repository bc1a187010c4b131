package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record this core authenticates against. The NIK is the
// login key: a fixed-length digit string, globally unique and immutable.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	NIK            string     `bun:"nik,notnull,unique" json:"nik,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// RevokedToken records a token ID invalidated ahead of its expiry. Rows become
// purgeable once ExpiresAt passes, since the codec rejects the token on time
// alone from then on.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rtk"`
	TokenID       string     `bun:"token_id,pk" json:"token_id"`
	UserID        *uuid.UUID `bun:"user_id" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
