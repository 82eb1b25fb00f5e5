package models

import "time"

// Agent is a configured persona (name, voice, prompt) that drives a call's
// responses. Agents are owned by exactly one account.
type Agent struct {
	ID           string
	UserID       string
	Name         string
	Voice        string
	SystemPrompt string
	Greeting     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
