package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/portalauth/internal/apperrors"
)

type LoginRepo struct {
	DB DBTX
}

const setPasswordHash = `-- name: setPasswordHash
INSERT INTO logins (user_id, password_hash)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash
`

func (r *LoginRepo) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	_, err := r.DB.Exec(ctx, setPasswordHash, userID, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getPasswordHash = `-- name: getPasswordHash
SELECT password_hash FROM logins
WHERE user_id = $1
`

func (r *LoginRepo) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	rows, _ := r.DB.Query(ctx, getPasswordHash, userID)
	hash, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrUserNotFound
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}
