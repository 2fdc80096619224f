package ports

import (
	"context"

	"github.com/ghalamif/twinfleet/internal/domain"
)

// Reporter receives one batch of unit reports per fleet iteration.
type Reporter interface {
	Report(ctx context.Context, iteration int, reports []domain.StatusReport) error
	Name() string
	Close() error
}

// ReportPublisher delivers one batch to a downstream system synchronously.
type ReportPublisher interface {
	Publish(ctx context.Context, reports []domain.StatusReport) error
	Name() string
}
