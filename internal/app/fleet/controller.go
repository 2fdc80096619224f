// Package fleet drives the simulation loop over every unit in the fleet.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
	"github.com/ghalamif/twinfleet/internal/twin"
)

// ErrUnitNotFound is returned for operator commands naming an unknown unit.
var ErrUnitNotFound = errors.New("fleet: equipment not found")

type Options struct {
	TickInterval  time.Duration
	RiskThreshold float64
	Workers       int
	HoursPerTick  float64
	Now           func() time.Time
}

// Controller owns the fleet and runs iterations: every unit is ticked, read,
// persisted and risk-checked, then one batch of reports is emitted.
type Controller struct {
	units   []*Unit
	byID    map[string]*Unit
	sensors map[string]*twin.Sensor

	store    ports.Store
	advisor  ports.RiskAdvisor
	reporter ports.Reporter
	obs      ports.Observability
	opts     Options

	runID     string
	iteration atomic.Int64
}

// unitOutcome is what one worker learned about its unit during an iteration.
type unitOutcome struct {
	writeFailures int
	risk          float64
	maintenance   bool
}

// New wires a controller. reporter may be nil.
func New(units []*Unit, store ports.Store, advisor ports.RiskAdvisor, reporter ports.Reporter, obs ports.Observability, opts Options) (*Controller, error) {
	if len(units) == 0 {
		return nil, errors.New("fleet: no equipment configured")
	}
	if store == nil || advisor == nil || obs == nil {
		return nil, errors.New("fleet: store, advisor and observability are required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.HoursPerTick <= 0 {
		opts.HoursPerTick = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		units:    units,
		byID:     make(map[string]*Unit, len(units)),
		sensors:  make(map[string]*twin.Sensor),
		store:    store,
		advisor:  advisor,
		reporter: reporter,
		obs:      obs,
		opts:     opts,
		runID:    uuid.NewString(),
	}
	for _, u := range units {
		if _, dup := c.byID[u.ID()]; dup {
			return nil, fmt.Errorf("fleet: duplicate equipment %q", u.ID())
		}
		c.byID[u.ID()] = u
		for _, s := range u.Sensors {
			c.sensors[s.ID()] = s
		}
	}
	return c, nil
}

func (c *Controller) RunID() string { return c.runID }

// Iteration is the number of completed iterations.
func (c *Controller) Iteration() int { return int(c.iteration.Load()) }

func (c *Controller) Units() []*Unit { return c.units }

func (c *Controller) Unit(id string) (*Unit, bool) {
	u, ok := c.byID[id]
	return u, ok
}

func (c *Controller) Sensor(id string) (*twin.Sensor, bool) {
	s, ok := c.sensors[id]
	return s, ok
}

func (c *Controller) Store() ports.Store { return c.store }

// Run iterates until ctx is cancelled. Cancellation is a normal stop.
func (c *Controller) Run(ctx context.Context) error {
	c.logStarted()
	defer c.logStopped()

	for {
		if err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.sleep(ctx) {
			return nil
		}
	}
}

// RunIterations runs exactly n iterations unless ctx is cancelled first, in
// which case the context error is returned.
func (c *Controller) RunIterations(ctx context.Context, n int) error {
	c.logStarted(ports.Field{Key: "limit", Value: n})
	defer c.logStopped()

	for i := 0; i < n; i++ {
		if err := c.Step(ctx); err != nil {
			return err
		}
		if i < n-1 && !c.sleep(ctx) {
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) logStarted(extra ...ports.Field) {
	fields := append([]ports.Field{
		{Key: "run_id", Value: c.runID},
		{Key: "units", Value: len(c.units)},
		{Key: "store", Value: c.store.Name()},
	}, extra...)
	c.obs.LogInfo("fleet_started", fields...)
}

func (c *Controller) logStopped() {
	c.obs.LogInfo("fleet_stopped",
		ports.Field{Key: "run_id", Value: c.runID},
		ports.Field{Key: "iterations", Value: c.Iteration()})
}

// Step performs one iteration. Store and reporter failures are recorded but
// never returned; only cancellation stops an iteration early.
func (c *Controller) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	iteration := int(c.iteration.Load()) + 1
	simTime := float64(iteration) * c.opts.HoursPerTick

	outcomes := make([]unitOutcome, len(c.units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, u := range c.units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = c.tickUnit(gctx, u, simTime)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.iteration.Store(int64(iteration))

	c.report(ctx, iteration, outcomes)

	c.obs.ObserveLatency(ports.MetricIterationLatency, time.Since(start).Seconds())
	return nil
}

// tickUnit keeps the per-unit order: tick, sensor reads, snapshot, risk.
func (c *Controller) tickUnit(ctx context.Context, u *Unit, simTime float64) unitOutcome {
	var out unitOutcome
	eq := u.Equipment

	res := eq.Tick()
	c.obs.IncCounter(ports.MetricTicks, 1)
	if res.Failures > 0 {
		c.obs.IncCounter(ports.MetricEquipmentFailures, float64(res.Failures))
		c.obs.LogError("equipment_failed", nil,
			ports.Field{Key: "equipment_id", Value: eq.ID()},
			ports.Field{Key: "failures", Value: res.Failures},
			ports.Field{Key: "temperature", Value: res.Temperature})
	}

	for _, s := range u.Sensors {
		v := s.Read()
		if !s.InRange(v) {
			c.obs.IncCounter(ports.MetricOutOfRangeReadings, 1)
			c.obs.LogInfo("out_of_range",
				ports.Field{Key: "sensor_id", Value: s.ID()},
				ports.Field{Key: "equipment_id", Value: eq.ID()},
				ports.Field{Key: "value", Value: v})
		}
		r := domain.Reading{SensorID: s.ID(), EquipmentID: eq.ID(), Value: v, Timestamp: c.opts.Now()}
		if err := c.store.AppendReading(ctx, r); err != nil {
			out.writeFailures++
			c.obs.RecordWriteFailure("reading", s.ID(), err)
			continue
		}
		c.obs.IncCounter(ports.MetricReadingsPersisted, 1)
	}

	if err := c.store.AppendSnapshot(ctx, eq.Snapshot(c.opts.Now())); err != nil {
		out.writeFailures++
		c.obs.RecordWriteFailure("snapshot", eq.ID(), err)
	} else {
		c.obs.IncCounter(ports.MetricSnapshotsPersisted, 1)
	}

	out.risk = c.advisor.Predict(simTime)
	if c.advisor.CheckRisk(simTime, c.opts.RiskThreshold) {
		eq.PerformMaintenance()
		out.maintenance = true
		c.obs.IncCounter(ports.MetricMaintenance, 1)
		c.obs.LogInfo("maintenance_triggered",
			ports.Field{Key: "equipment_id", Value: eq.ID()},
			ports.Field{Key: "risk_score", Value: out.risk},
			ports.Field{Key: "threshold", Value: c.opts.RiskThreshold})
	}
	return out
}

func (c *Controller) report(ctx context.Context, iteration int, outcomes []unitOutcome) {
	now := c.opts.Now()
	reports := make([]domain.StatusReport, len(c.units))
	failed := 0

	for i, u := range c.units {
		sum := u.Equipment.PerformanceSummary()
		if sum.Status == domain.StatusFailed {
			failed++
		}
		events := u.Equipment.EventsSince(u.eventCursor)
		u.eventCursor += len(events)

		reports[i] = domain.StatusReport{
			RunID:                c.runID,
			Iteration:            iteration,
			Timestamp:            now,
			ID:                   sum.ID,
			Name:                 sum.Name,
			Location:             sum.Location,
			Status:               sum.Status,
			Health:               sum.Health,
			EfficiencyPercent:    sum.EfficiencyPercent,
			Temperature:          sum.Temperature,
			CurrentCapacity:      sum.CurrentCapacity,
			CurrentSpeed:         sum.CurrentSpeed,
			UptimePercentage:     sum.UptimePercentage,
			FailureCount:         sum.FailureCount,
			DowntimeHours:        float64(sum.DowntimeTicks) * c.opts.HoursPerTick,
			Events:               events,
			RiskScore:            outcomes[i].risk,
			MaintenanceTriggered: outcomes[i].maintenance,
			WriteFailures:        outcomes[i].writeFailures,
		}
	}
	c.obs.SetGauge(ports.MetricUnitsFailed, float64(failed))

	if c.reporter == nil {
		return
	}
	if err := c.reporter.Report(ctx, iteration, reports); err != nil {
		c.obs.IncCounter(ports.MetricReportFailures, 1)
		c.obs.LogError("report_failed", err,
			ports.Field{Key: "reporter", Value: c.reporter.Name()},
			ports.Field{Key: "iteration", Value: iteration})
	}
}

// sleep waits one tick interval and reports false if ctx ended first.
func (c *Controller) sleep(ctx context.Context) bool {
	if c.opts.TickInterval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.opts.TickInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// TriggerMaintenance performs an operator-requested repair outside the loop.
func (c *Controller) TriggerMaintenance(id string) error {
	u, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnitNotFound, id)
	}
	u.Equipment.PerformMaintenance()
	c.obs.IncCounter(ports.MetricMaintenance, 1)
	c.obs.LogInfo("maintenance_requested", ports.Field{Key: "equipment_id", Value: id})
	return nil
}
