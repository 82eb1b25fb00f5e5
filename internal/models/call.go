package models

import "time"

const (
	CallStatusQueued     = "queued"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in_progress"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

// Call is a single voice session between an end user and an agent. A call is
// visible only to its owning account; its identifier never changes once
// created.
type Call struct {
	ID              string
	UserID          string
	AgentID         string
	Status          string
	FromNumber      string
	ToNumber        string
	DurationSeconds int
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CallAgent is the public projection of the agent attached to a call.
type CallAgent struct {
	ID    string
	Name  string
	Voice string
}

// CallWithAgent pairs a call with its agent projection, as returned by the
// owner-scoped lookup.
type CallWithAgent struct {
	Call  Call
	Agent CallAgent
}
