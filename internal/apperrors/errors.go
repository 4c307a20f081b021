package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// Every authentication failure wraps ErrUnauthorized,
	// so callers may check the broad kind or the specific one
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrMissingToken       = fmt.Errorf("%w: token missing", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: token invalid or expired", ErrUnauthorized)
	ErrReplayDetected     = fmt.Errorf("%w: refresh token replay detected", ErrUnauthorized)
	ErrStoreMismatch      = fmt.Errorf("%w: stored refresh token mismatch", ErrUnauthorized)
)

// Kind returns short name of the authentication failure suitable for audit logs
// Empty string means err is not an authentication failure
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, ErrStoreMismatch):
		return "store_mismatch"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return ""
	}
}
