package repository

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenKey returns fixed size key for token blacklist entries,
// so raw refresh tokens never become storage keys
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
