package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// AsyncReporter decouples the fleet loop from a slow publisher: Report only
// enqueues, and a background loop started by Start drains the queue in batches.
type AsyncReporter struct {
	pub ports.ReportPublisher
	q   ports.ReportQueue
	pol ports.Policy
	obs ports.Observability

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewAsyncReporter(pub ports.ReportPublisher, q ports.ReportQueue, pol ports.Policy, obs ports.Observability) *AsyncReporter {
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = 5 * time.Millisecond
	}
	return &AsyncReporter{pub: pub, q: q, pol: pol, obs: obs}
}

func (a *AsyncReporter) Name() string { return "async-" + a.pub.Name() }

// Start launches the drain loop. It is a no-op when already running.
func (a *AsyncReporter) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil || a.stopped {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		RunReportPipeline(ctx, a.q, a.pub, a.pol, a.obs)
	}()
}

// Report enqueues reports for the drain loop. Reports the queue policy
// discards are logged and counted as dropped here, not returned as an error.
func (a *AsyncReporter) Report(ctx context.Context, _ int, reports []domain.StatusReport) error {
	dropped := 0
	for _, r := range reports {
		a.mu.Lock()
		a.seq++
		seq := a.seq
		a.mu.Unlock()

		if !enqueueWithPolicy(ctx, a.q, seq, r, a.pol, a.obs) {
			dropped++
		}
	}
	a.obs.SetGauge(ports.MetricReportQueueLength, float64(a.q.Len()))
	if dropped > 0 {
		a.obs.IncCounter(ports.MetricReportsDropped, float64(dropped))
	}
	return nil
}

// Close stops the drain loop, publishes whatever is still queued and closes
// the publisher when it holds resources.
func (a *AsyncReporter) Close() error {
	a.mu.Lock()
	a.stopped = true
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	err := flushAll(context.Background(), a.q, a.pub, a.pol, a.obs)
	if c, ok := a.pub.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// RunReportPipeline publishes queued reports until ctx is cancelled. A failed
// batch is logged and counted; reports are not re-queued.
func RunReportPipeline(ctx context.Context, q ports.ReportQueue, pub ports.ReportPublisher, pol ports.Policy, obs ports.Observability) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pol.IdleSleep):
			}
			continue
		}
		// an in-flight batch finishes even when stop is requested mid-publish
		publishBatch(context.WithoutCancel(ctx), batch, pub, obs)
		obs.SetGauge(ports.MetricReportQueueLength, float64(q.Len()))
	}
}

func flushAll(ctx context.Context, q ports.ReportQueue, pub ports.ReportPublisher, pol ports.Policy, obs ports.Observability) error {
	var errs []error
	for {
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			obs.SetGauge(ports.MetricReportQueueLength, 0)
			return errors.Join(errs...)
		}
		if err := publishBatch(ctx, batch, pub, obs); err != nil {
			errs = append(errs, err)
		}
	}
}

func publishBatch(ctx context.Context, batch []ports.QueuedReport, pub ports.ReportPublisher, obs ports.Observability) error {
	reports := make([]domain.StatusReport, len(batch))
	for i, item := range batch {
		reports[i] = item.Report
	}
	if err := pub.Publish(ctx, reports); err != nil {
		obs.IncCounter(ports.MetricReportFailures, 1)
		obs.LogError("report_publish_failed", err,
			ports.Field{Key: "publisher", Value: pub.Name()},
			ports.Field{Key: "batch", Value: len(reports)},
			ports.Field{Key: "first_seq", Value: batch[0].Seq})
		return err
	}
	return nil
}

func enqueueWithPolicy(ctx context.Context, q ports.ReportQueue, seq uint64, r domain.StatusReport, pol ports.Policy, obs ports.Observability) bool {
	for {
		if ok := q.Enqueue(seq, r); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				obs.LogError("report_enqueue_cancelled", ctx.Err(), ports.Field{Key: "equipment_id", Value: r.ID})
				return false
			case <-time.After(pol.IdleSleep):
			}
		case "drop":
			obs.LogError("report_queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen),
				ports.Field{Key: "equipment_id", Value: r.ID})
			return false
		default:
			obs.LogError("report_queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

var _ ports.Reporter = (*AsyncReporter)(nil)
