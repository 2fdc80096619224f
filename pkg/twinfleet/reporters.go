package twinfleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelReporterClosed is returned when a channel reporter is used after
// being closed.
var ErrChannelReporterClosed = errors.New("twinfleet: channel reporter closed")

// ReportFunc receives the reports of one iteration, in configuration order.
type ReportFunc func(iteration int, reports []StatusReport) error

// NewCallbackReporter adapts a function into a Reporter so callers can plug
// arbitrary handlers without defining structs.
func NewCallbackReporter(name string, fn ReportFunc) Reporter {
	if name == "" {
		name = "callback"
	}
	return &callbackReporter{name: name, fn: fn}
}

// NewChannelReporter exposes batches via a channel; it returns the reporter,
// the read-only channel, and a close function that the caller should invoke
// during shutdown. Report blocks while the buffer is full unless ctx ends.
func NewChannelReporter(name string, buffer int) (Reporter, <-chan []StatusReport, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []StatusReport, buffer)
	r := &channelReporter{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return r, ch, r.close
}

type callbackReporter struct {
	name string
	fn   ReportFunc
}

func (r *callbackReporter) Report(_ context.Context, iteration int, reports []StatusReport) error {
	if r.fn == nil {
		return fmt.Errorf("callback reporter %q: nil handler", r.name)
	}
	if len(reports) == 0 {
		return nil
	}
	return r.fn(iteration, copyReports(reports))
}

func (r *callbackReporter) Name() string { return r.name }
func (r *callbackReporter) Close() error { return nil }

type channelReporter struct {
	name   string
	mu     sync.RWMutex
	ch     chan []StatusReport
	closed chan struct{}
	once   sync.Once
}

func (r *channelReporter) Report(ctx context.Context, _ int, reports []StatusReport) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	select {
	case <-r.closed:
		return ErrChannelReporterClosed
	default:
	}

	if len(reports) == 0 {
		return nil
	}

	select {
	case <-r.closed:
		return ErrChannelReporterClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.ch <- copyReports(reports):
		return nil
	}
}

func (r *channelReporter) Name() string { return r.name }

func (r *channelReporter) Close() error {
	r.close()
	return nil
}

// close signals first so blocked senders return, then closes the channel once
// no Report call is in flight.
func (r *channelReporter) close() {
	r.once.Do(func() {
		close(r.closed)
		r.mu.Lock()
		close(r.ch)
		r.mu.Unlock()
	})
}

func copyReports(in []StatusReport) []StatusReport {
	out := make([]StatusReport, len(in))
	copy(out, in)
	return out
}
