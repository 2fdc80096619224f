package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// MultiReporter fans a batch out to every reporter. One failing reporter does
// not prevent delivery to the others.
type MultiReporter struct {
	reporters []ports.Reporter
}

func NewMultiReporter(reporters ...ports.Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Name() string {
	names := make([]string, len(m.reporters))
	for i, r := range m.reporters {
		names[i] = r.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *MultiReporter) Report(ctx context.Context, iteration int, reports []domain.StatusReport) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, iteration, reports); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiReporter) Close() error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ ports.Reporter = (*MultiReporter)(nil)
