package domain

import "time"

// EventKind classifies entries in an equipment event log.
type EventKind string

const (
	EventFailure      EventKind = "failure"
	EventMaintenance  EventKind = "maintenance"
	EventSpeed        EventKind = "speed"
	EventUpgrade      EventKind = "upgrade"
	EventReplacement  EventKind = "replacement"
	EventLifecycle    EventKind = "lifecycle_reset"
	EventDecommission EventKind = "decommission"
)

// Event is a timestamped entry in an equipment's append-only log.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}
