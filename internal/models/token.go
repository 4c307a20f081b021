package models

import (
	"time"
)

type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by AuthService on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Verified token payload
type Claims struct {
	Subject   string
	Role      Role
	Kind      TokenKind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
