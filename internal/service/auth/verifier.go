package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/models"
	"github.com/nkiryanov/portalauth/internal/repository"
)

// Compared against when there is nothing to compare with,
// so unknown and known accounts cost the same time
const dummyPassword = "portalauth-dummy-password"

// CredentialVerifier checks a plaintext secret against the hash on file
type CredentialVerifier struct {
	logins    repository.LoginRepo
	hasher    PasswordHasher
	dummyHash string
}

func NewCredentialVerifier(logins repository.LoginRepo, hasher PasswordHasher) (*CredentialVerifier, error) {
	if hasher == nil {
		hasher = DefaultHasher
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("can't prepare dummy hash: %w", err)
	}

	return &CredentialVerifier{
		logins:    logins,
		hasher:    hasher,
		dummyHash: dummyHash,
	}, nil
}

// Verify reports whether password matches the one on file for user.
// Nil user means the account does not exist, the result is always false then
func (v *CredentialVerifier) Verify(ctx context.Context, user *models.User, password string) (bool, error) {
	if user == nil {
		v.burn(password)
		return false, nil
	}

	hash, err := v.logins.GetPasswordHash(ctx, user.ID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		v.burn(password)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("can't load password hash: %w", err)
	}

	return v.hasher.Compare(hash, password) == nil, nil
}

func (v *CredentialVerifier) burn(password string) {
	_ = v.hasher.Compare(v.dummyHash, password)
}
