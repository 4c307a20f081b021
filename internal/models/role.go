package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleAssistant Role = "ASSISTANT"
	RoleProfessor Role = "PROFESSOR"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAssistant, RoleProfessor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Parse role case-insensitively, e.g. "professor" -> RoleProfessor
func ParseRole(value string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(value)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return r, nil
}
