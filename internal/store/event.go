package store

import "time"

// EventKind names the state change that produced an event
type EventKind string

const (
	EventLoading   EventKind = "loading"
	EventListed    EventKind = "listed"
	EventCleared   EventKind = "cleared"
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
	EventExecuting EventKind = "executing"
	EventExecuted  EventKind = "executed"
	EventRefreshed EventKind = "refreshed"
)

// Event signals that the store's state changed and views should re-render
type Event struct {
	Kind   EventKind `json:"kind"`
	TaskID string    `json:"taskId,omitempty"`
	Count  int       `json:"count,omitempty"`
	At     time.Time `json:"at"`
}
