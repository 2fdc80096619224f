package twinfleet

import (
	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// StatusReport is the per-unit summary handed to reporters each iteration.
type StatusReport = domain.StatusReport

// Reading is one persisted sensor value.
type Reading = domain.Reading

// Snapshot is one persisted equipment state.
type Snapshot = domain.Snapshot

// Event is an entry in an equipment's event log.
type Event = domain.Event

// Status is the operational state of a unit.
type Status = domain.Status

// Health is the coarse label derived from status and temperature.
type Health = domain.Health

const (
	StatusOperational = domain.StatusOperational
	StatusFailed      = domain.StatusFailed

	HealthHealthy  = domain.HealthHealthy
	HealthWarning  = domain.HealthWarning
	HealthCritical = domain.HealthCritical
)

// Store persists readings and snapshots; bring your own to target any database.
type Store = ports.Store

// Reporter receives one batch of reports per iteration.
type Reporter = ports.Reporter

// ReportPublisher is a synchronous batch destination that can be run behind
// the bounded async queue.
type ReportPublisher = ports.ReportPublisher

// Observability emits structured logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// ErrInvalidLimit is returned by store queries with a non-positive limit.
var ErrInvalidLimit = ports.ErrInvalidLimit
