package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account record. Email is the identity tokens are issued for
type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Email     string
	Role      Role
}

// NormalizeEmail brings email to the form accounts and sessions are keyed by
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
