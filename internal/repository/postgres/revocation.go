package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/repository"
)

// Revocation store on top of postgres
// TTL is emulated with 'expires_at' columns: expired rows are treated as absent
type RevocationRepo struct {
	DB DBTX

	// Clock, time.Now if nil
	Now func() time.Time
}

func (r *RevocationRepo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const putRefreshToken = `-- name: Put refresh token for identity
INSERT INTO refresh_tokens (identity, token, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (identity) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
`

func (r *RevocationRepo) Put(ctx context.Context, identity string, token string, ttl time.Duration) error {
	_, err := r.DB.Exec(ctx, putRefreshToken, identity, token, r.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getRefreshToken = `-- name: Get not expired refresh token
SELECT token FROM refresh_tokens
WHERE identity = $1 AND expires_at > $2
`

func (r *RevocationRepo) Get(ctx context.Context, identity string) (string, error) {
	rows, _ := r.DB.Query(ctx, getRefreshToken, identity, r.now())
	token, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

const isBlacklisted = `-- name: Is token revoked
SELECT EXISTS (
	SELECT 1 FROM revoked_tokens
	WHERE token_hash = $1 AND expires_at > $2
)
`

func (r *RevocationRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	rows, _ := r.DB.Query(ctx, isBlacklisted, repository.TokenKey(token), r.now())
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Never shortens existing blacklist entry
const blacklistToken = `-- name: Revoke token
INSERT INTO revoked_tokens (token_hash, expires_at)
VALUES ($1, $2)
ON CONFLICT (token_hash) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
`

func (r *RevocationRepo) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	_, err := r.DB.Exec(ctx, blacklistToken, repository.TokenKey(token), r.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteRefreshToken = `-- name: Delete identity refresh token
DELETE FROM refresh_tokens
WHERE identity = $1
`

func (r *RevocationRepo) Delete(ctx context.Context, identity string) error {
	_, err := r.DB.Exec(ctx, deleteRefreshToken, identity)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Concurrent updates of the same row are serialized by postgres;
// the loser re-checks 'token = $2' against the committed row and matches nothing
const swapRefreshToken = `-- name: Compare and swap refresh token
UPDATE refresh_tokens
SET token = $3, expires_at = $4
WHERE identity = $1 AND token = $2 AND expires_at > $5
`

func (r *RevocationRepo) Rotate(ctx context.Context, identity string, oldToken string, newToken string, ttl time.Duration, blacklistTTL time.Duration) error {
	now := r.now()

	return pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, swapRefreshToken, identity, oldToken, newToken, now.Add(ttl), now)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("repo error: %w", apperrors.ErrStoreMismatch)
		}

		_, err = tx.Exec(ctx, blacklistToken, repository.TokenKey(oldToken), now.Add(blacklistTTL))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		return nil
	})
}

const purgeExpired = `-- name: Purge expired entries
WITH
	rt AS (DELETE FROM refresh_tokens WHERE expires_at <= $1 RETURNING 1),
	bl AS (DELETE FROM revoked_tokens WHERE expires_at <= $1 RETURNING 1)
SELECT (SELECT count(*) FROM rt) + (SELECT count(*) FROM bl)
`

// Delete expired rows. Expired rows are already ignored by reads, this only reclaims space
func (r *RevocationRepo) PurgeExpired(ctx context.Context) (int64, error) {
	rows, _ := r.DB.Query(ctx, purgeExpired, r.now())
	deleted, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return deleted, nil
}
