package models

import "time"

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

// User represents an account record.
type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string
	Role             string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioConfigured bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Sanitize returns a copy of the user without secret fields populated.
func (u User) Sanitize() User {
	u.PasswordHash = ""
	u.TwilioAuthToken = ""
	return u
}

// IsAdmin reports whether the account carries the administrator role.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
