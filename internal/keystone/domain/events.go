package domain

import "time"

// EventType names an account lifecycle event.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventUserLogin      EventType = "user.login"
	EventUserLogout     EventType = "user.logout"
	EventTokenRefreshed EventType = "token.refreshed"
	EventUserUpdated    EventType = "user.updated"
	EventUserDeleted    EventType = "user.deleted"
	EventEmailVerified  EventType = "user.email_verified"
	EventPasswordReset  EventType = "user.password_reset"
)

// Event is published to the event stream and to live subscribers.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Transport  Transport `json:"transport,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
