package twinfleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghalamif/twinfleet/internal/adapters/observability"
	"github.com/ghalamif/twinfleet/internal/adapters/queue"
	"github.com/ghalamif/twinfleet/internal/adapters/report"
	"github.com/ghalamif/twinfleet/internal/adapters/store"
	"github.com/ghalamif/twinfleet/internal/api"
	"github.com/ghalamif/twinfleet/internal/app/advisor"
	"github.com/ghalamif/twinfleet/internal/app/config"
	"github.com/ghalamif/twinfleet/internal/app/fleet"
	"github.com/ghalamif/twinfleet/internal/app/pipeline"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	store         Store
	reporters     []Reporter
	observability Observability
	registry      *prometheus.Registry
	logger        *zap.Logger
	clock         func() time.Time
}

// WithStore injects a custom store so readings and snapshots can land in any
// database. The caller keeps ownership and closes it.
func WithStore(s Store) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithReporter adds a reporter next to the ones configured under report.sinks.
func WithReporter(r Reporter) RuntimeOption {
	return func(o *runtimeOverrides) {
		if r != nil {
			o.reporters = append(o.reporters, r)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry registers the fleet metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithLogger replaces the logger built from the log section of the config.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithClock overrides the wall clock used for record timestamps.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = now
	}
}

// Runtime wires the fleet controller, store, reporters and status API from a
// Config and exposes lifecycle hooks for embedding a fleet inside any Go
// service.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	logger     *zap.Logger
	ownsLogger bool
	registry   *prometheus.Registry

	store      ports.Store
	ownsStore  bool
	reporters  []ports.Reporter
	async      []*pipeline.AsyncReporter
	queues     []ports.ReportQueue
	controller *fleet.Controller
	handler    http.Handler

	httpSrv     *http.Server
	listener    net.Listener
	gaugeStopCh chan struct{}
	gaugeDoneCh chan struct{}
	stopOnce    sync.Once
}

// NewRuntime bootstraps the default adapters (zap logger, Prometheus metrics,
// the configured store backend and report sinks). Callers can use
// RuntimeOption values to override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{cfg: cfg, registry: overrides.registry}
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
	}

	rt.logger = overrides.logger
	if rt.logger == nil {
		logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return nil, err
		}
		rt.logger = logger
		rt.ownsLogger = true
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		rt.obs = observability.NewPromObs(rt.registry, rt.logger)
	}

	clock := overrides.clock
	if clock == nil {
		clock = time.Now
	}

	adv, err := advisor.New(cfg.Advisor.Points)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}
	units, err := fleet.BuildUnits(cfg.Equipment, cfg.Sensors, cfg.Fleet.Seed, clock)
	if err != nil {
		return nil, err
	}

	rt.store = overrides.store
	if rt.store == nil {
		rt.store, err = OpenStore(context.Background(), cfg.Store)
		if err != nil {
			return nil, err
		}
		rt.ownsStore = true
	}

	if err := rt.buildReporters(overrides.reporters); err != nil {
		return nil, errors.Join(err, rt.closeResources())
	}

	var rep ports.Reporter
	switch len(rt.reporters) {
	case 0:
	case 1:
		rep = rt.reporters[0]
	default:
		rep = report.NewMultiReporter(rt.reporters...)
	}

	rt.controller, err = fleet.New(units, rt.store, adv, rep, rt.obs, fleet.Options{
		TickInterval:  cfg.Fleet.TickInterval,
		RiskThreshold: cfg.Fleet.RiskThreshold,
		Workers:       cfg.Fleet.Workers,
		HoursPerTick:  cfg.Fleet.HoursPerTick,
		Now:           clock,
	})
	if err != nil {
		return nil, errors.Join(err, rt.closeResources())
	}

	metrics := promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry})
	rt.handler = api.NewRouter(api.NewHandler(rt.controller, rt.obs), metrics)
	return rt, nil
}

func (r *Runtime) buildReporters(extra []Reporter) error {
	pol := r.cfg.Report.Policy
	for _, sink := range r.cfg.Report.Sinks {
		switch sink {
		case config.SinkLog:
			r.reporters = append(r.reporters, report.NewLogReporter(r.obs))
		case config.SinkKafka:
			kc := r.cfg.Report.Kafka
			client, err := report.NewKafkaClient(kc.Brokers, kc.ClientID, kc.Topic)
			if err != nil {
				return err
			}
			q := queue.NewMemQueue(pol.MaxQueueLen)
			async := pipeline.NewAsyncReporter(report.NewKafkaReporter(client, kc.Topic), q, pol, r.obs)
			r.async = append(r.async, async)
			r.queues = append(r.queues, q)
			r.reporters = append(r.reporters, async)
		default:
			return fmt.Errorf("unsupported report sink %q", sink)
		}
	}
	r.reporters = append(r.reporters, extra...)
	return nil
}

// Start launches the report flushers, the HTTP listener and the resource
// gauges. It returns immediately; call Run to drive the fleet as well.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	for _, a := range r.async {
		a.Start(ctx)
	}
	if err := r.startHTTP(); err != nil {
		return err
	}

	r.gaugeStopCh = make(chan struct{})
	r.gaugeDoneCh = make(chan struct{})
	go r.recordResourceGauges(r.gaugeStopCh, time.Second)
	return nil
}

// Run starts the runtime and drives the fleet until ctx is cancelled, or for
// fleet.iterations iterations when that is set. It always shuts down before
// returning; cancellation is not an error.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return errors.Join(err, r.Shutdown(context.Background()))
	}

	var runErr error
	if n := r.cfg.Fleet.Iterations; n > 0 {
		runErr = r.controller.RunIterations(ctx, n)
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	} else {
		runErr = r.controller.Run(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP listener, drains and closes reporters, then closes
// the store. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	r.stopOnce.Do(func() {
		if r.gaugeStopCh != nil {
			close(r.gaugeStopCh)
			<-r.gaugeDoneCh
		}

		if r.httpSrv != nil {
			if err := r.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}

		errs = append(errs, r.closeResources())

		r.obs.LogInfo("runtime_stopped",
			ports.Field{Key: "run_id", Value: r.controller.RunID()},
			ports.Field{Key: "iterations", Value: r.controller.Iteration()})
		if r.ownsLogger {
			_ = r.logger.Sync()
		}
	})
	return errors.Join(errs...)
}

func (r *Runtime) closeResources() error {
	var errs []error
	for _, rep := range r.reporters {
		if err := rep.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Name(), err))
		}
	}
	if r.ownsStore && r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", r.store.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) startHTTP() error {
	if r.cfg.Metrics.Addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.Metrics.Addr, err)
	}
	r.listener = ln
	r.httpSrv = &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_server_exited", err)
		}
	}()
	r.obs.LogInfo("http_listening", ports.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

func (r *Runtime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	defer close(r.gaugeDoneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sampleGauges()
		}
	}
}

func (r *Runtime) sampleGauges() {
	if js, ok := r.store.(*store.JournalStore); ok {
		r.obs.SetGauge(ports.MetricJournalSizeBytes, float64(js.Stats().SizeBytes))
	}
	if len(r.queues) > 0 {
		var n int
		for _, q := range r.queues {
			n += q.Len()
		}
		r.obs.SetGauge(ports.MetricReportQueueLength, float64(n))
	}
}

// Addr is the address the HTTP listener is bound to, or "" before Start.
func (r *Runtime) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Handler serves the status API and /metrics without a listener.
func (r *Runtime) Handler() http.Handler { return r.handler }

// Step runs a single iteration outside the loop.
func (r *Runtime) Step(ctx context.Context) error { return r.controller.Step(ctx) }

// Iteration is the number of completed iterations.
func (r *Runtime) Iteration() int { return r.controller.Iteration() }

// RunID identifies this runtime in every report.
func (r *Runtime) RunID() string { return r.controller.RunID() }

// Store returns the store readings and snapshots are persisted to.
func (r *Runtime) Store() Store { return r.store }

// TriggerMaintenance repairs the named unit immediately.
func (r *Runtime) TriggerMaintenance(equipmentID string) error {
	return r.controller.TriggerMaintenance(equipmentID)
}
