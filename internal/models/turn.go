package models

import (
	"fmt"
	"strings"
)

// Role tags one conversation turn. The set is closed; anything else must be
// rejected at the boundary rather than forwarded to the provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalises and validates a role string from an untrusted source.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleSystem, RoleUser, RoleAssistant:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Turn is one role-tagged message in a conversation history.
type Turn struct {
	Role    Role
	Content string
}
