package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded EventType = "auth.login.succeeded"
	EventLoginFailed    EventType = "auth.login.failed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LoginPayload describes one login attempt. It never carries secrets.
type LoginPayload struct {
	UserID   string        `json:"user_id,omitempty"`
	Email    string        `json:"email"`
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason"`
	Stage    string        `json:"stage"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}
