package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/portalauth/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, role models.Role) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Change role on file
	// If user not found must return apperrors.ErrUserNotFound
	SetRole(ctx context.Context, email string, role models.Role) (models.User, error)
}

// Login (password hash) repository interface
type LoginRepo interface {
	// Create or replace password hash for the user
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error

	// If no login record exists must return apperrors.ErrUserNotFound
	GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error)
}

// RevocationStore is the single source of truth whether a refresh token is still valid.
// It maps identity to the only valid refresh token and keeps a blacklist of revoked tokens.
// Both kinds of entries expire on their own after ttl
type RevocationStore interface {
	// Store refresh token for identity, overwriting any previous one
	Put(ctx context.Context, identity string, token string, ttl time.Duration) error

	// Return current refresh token for identity
	// If there is no one (or it expired) must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, identity string) (string, error)

	IsBlacklisted(ctx context.Context, token string) (bool, error)
	Blacklist(ctx context.Context, token string, ttl time.Duration) error

	// Remove identity entry. Not existing entry is not an error
	Delete(ctx context.Context, identity string) error

	// Atomically replace oldToken with newToken for identity and blacklist oldToken.
	// If currently stored token is not oldToken must return apperrors.ErrStoreMismatch and change nothing
	Rotate(ctx context.Context, identity string, oldToken string, newToken string, ttl time.Duration, blacklistTTL time.Duration) error
}

type Storage interface {
	User() UserRepo
	Login() LoginRepo
	Revocation() RevocationStore

	// Run fn in transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
