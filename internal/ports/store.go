package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/twinfleet/internal/domain"
)

// ErrInvalidLimit is returned by queries with a non-positive limit.
var ErrInvalidLimit = errors.New("store: limit must be positive")

// Store is an append-only history of readings and snapshots. Each append is
// atomic; queries return at most limit records, newest first.
type Store interface {
	AppendReading(ctx context.Context, r domain.Reading) error
	AppendSnapshot(ctx context.Context, s domain.Snapshot) error
	QueryReadings(ctx context.Context, sensorID string, limit int) ([]domain.Reading, error)
	QuerySnapshots(ctx context.Context, equipmentID string, limit int) ([]domain.Snapshot, error)
	Name() string
	Close() error
}
