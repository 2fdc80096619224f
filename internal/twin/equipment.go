package twin

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/twinfleet/internal/domain"
)

const (
	maxEfficiencyDecay = 0.05
	maxTempStep        = 2.0
)

// ErrSpeedLimitExceeded is returned when a speed command falls outside [0, MaxSpeed].
var ErrSpeedLimitExceeded = errors.New("twin: speed exceeds hard limit")

// TempRange is a closed operating band.
type TempRange struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

func (r TempRange) Contains(t float64) bool {
	return t >= r.Low && t <= r.High
}

// EquipmentSpec is the immutable definition a unit is built from.
type EquipmentSpec struct {
	ID              string
	Name            string
	Location        string
	MaxCapacity     float64
	Efficiency      float64
	Temperature     float64
	OperatingRange  TempRange
	WarnTemperature float64
	FailureRate     float64
	FailureTypes    []string
	MaxSpeed        float64
	InstalledAt     time.Time
}

func (s EquipmentSpec) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if s.MaxCapacity <= 0 {
		errs = append(errs, fmt.Errorf("max_capacity must be > 0, got %g", s.MaxCapacity))
	}
	if s.Efficiency < 0 || s.Efficiency > 1 {
		errs = append(errs, fmt.Errorf("efficiency must be in [0,1], got %g", s.Efficiency))
	}
	if s.OperatingRange.Low >= s.OperatingRange.High {
		errs = append(errs, fmt.Errorf("operating range low %g must be below high %g", s.OperatingRange.Low, s.OperatingRange.High))
	}
	if s.FailureRate < 0 || s.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("failure_rate must be in [0,1], got %g", s.FailureRate))
	}
	if len(s.FailureTypes) == 0 {
		errs = append(errs, errors.New("failure_types must not be empty"))
	}
	if s.MaxSpeed < 0 {
		errs = append(errs, fmt.Errorf("max_speed must be >= 0, got %g", s.MaxSpeed))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("equipment %q: %w", s.ID, err)
	}
	return nil
}

// TickResult is what a single simulation step reports back.
type TickResult struct {
	Status          domain.Status
	CurrentCapacity float64
	Temperature     float64
	// Failures is how many failure causes this step recorded; a step can
	// overheat and break down at once.
	Failures int
}

// Summary is the read-only performance view of a unit.
type Summary struct {
	ID                string
	Name              string
	Location          string
	Status            domain.Status
	Health            domain.Health
	EfficiencyPercent float64
	Temperature       float64
	CurrentCapacity   float64
	CurrentSpeed      float64
	OperationalTicks  int
	DowntimeTicks     int
	FailureCount      int
	UptimePercentage  float64
}

// Equipment is the digital twin of one unit. All methods are safe for
// concurrent use; the fleet ticks it from a worker while the status API reads.
type Equipment struct {
	mu sync.RWMutex

	spec EquipmentSpec
	rng  *rand.Rand
	now  func() time.Time

	status          domain.Status
	efficiency      float64
	currentCapacity float64
	temperature     float64
	currentSpeed    float64

	operationalTicks int
	downtimeTicks    int
	failureCount     int

	events       []domain.Event
	upgrades       []LifecycleEntry
	replacements   []LifecycleEntry
	decommissioned time.Time
}

// NewEquipment validates spec and returns an operational unit. rng must not be
// shared with other goroutines; now defaults to time.Now.
func NewEquipment(spec EquipmentSpec, rng *rand.Rand, now func() time.Time) (*Equipment, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("twin: random source is required")
	}
	if now == nil {
		now = time.Now
	}
	if spec.WarnTemperature == 0 {
		spec.WarnTemperature = spec.OperatingRange.Low + 0.8*(spec.OperatingRange.High-spec.OperatingRange.Low)
	}
	if spec.InstalledAt.IsZero() {
		spec.InstalledAt = now()
	}
	spec.FailureTypes = append([]string(nil), spec.FailureTypes...)

	e := &Equipment{
		spec:        spec,
		rng:         rng,
		now:         now,
		status:      domain.StatusOperational,
		efficiency:  spec.Efficiency,
		temperature: spec.Temperature,
	}
	e.currentCapacity = e.spec.MaxCapacity * e.efficiency
	return e, nil
}

func (e *Equipment) ID() string { return e.spec.ID }

func (e *Equipment) Name() string { return e.spec.Name }

func (e *Equipment) Spec() EquipmentSpec { return e.spec }

// Tick advances the unit by one step. A failed unit does not change
// physically; the step is counted as downtime.
func (e *Equipment) Tick() TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.StatusOperational {
		e.downtimeTicks++
		return e.resultLocked()
	}

	failuresBefore := e.failureCount
	e.efficiency -= e.rng.Float64() * maxEfficiencyDecay
	if e.efficiency < 0 {
		e.efficiency = 0
	}
	e.currentCapacity = e.spec.MaxCapacity * e.efficiency

	e.temperature += (e.rng.Float64()*2 - 1) * maxTempStep

	if !e.spec.OperatingRange.Contains(e.temperature) {
		e.failLocked(fmt.Sprintf("temperature %.2f outside operating range [%g, %g]",
			e.temperature, e.spec.OperatingRange.Low, e.spec.OperatingRange.High))
	}

	if e.rng.Float64() < e.spec.FailureRate {
		kind := e.spec.FailureTypes[e.rng.IntN(len(e.spec.FailureTypes))]
		e.failLocked("failure: " + kind)
	}

	if e.status == domain.StatusOperational {
		e.operationalTicks++
	}
	res := e.resultLocked()
	res.Failures = e.failureCount - failuresBefore
	return res
}

// PerformMaintenance restores the unit. Temperature and counters are kept.
func (e *Equipment) PerformMaintenance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = domain.StatusOperational
	e.efficiency = 1.0
	e.currentCapacity = e.spec.MaxCapacity
	e.appendEventLocked(domain.EventMaintenance, "maintenance performed, unit restored")
}

// SetSpeed commands a new running speed. Commands outside [0, MaxSpeed] are
// rejected and leave the unit untouched.
func (e *Equipment) SetSpeed(rpm float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.spec.MaxSpeed == 0 || rpm < 0 || rpm > e.spec.MaxSpeed {
		return fmt.Errorf("%w: %g rpm requested, limit %g", ErrSpeedLimitExceeded, rpm, e.spec.MaxSpeed)
	}
	e.currentSpeed = rpm
	e.appendEventLocked(domain.EventSpeed, fmt.Sprintf("speed set to %g rpm", rpm))
	return nil
}

// PerformanceSummary is a pure read of the unit's state.
func (e *Equipment) PerformanceSummary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Summary{
		ID:                e.spec.ID,
		Name:              e.spec.Name,
		Location:          e.spec.Location,
		Status:            e.status,
		Health:            e.healthLocked(),
		EfficiencyPercent: e.efficiency * 100,
		Temperature:       e.temperature,
		CurrentCapacity:   e.currentCapacity,
		CurrentSpeed:      e.currentSpeed,
		OperationalTicks:  e.operationalTicks,
		DowntimeTicks:     e.downtimeTicks,
		FailureCount:      e.failureCount,
		UptimePercentage:  UptimePercentage(e.operationalTicks, e.downtimeTicks),
	}
}

// UptimePercentage returns 0 when no ticks have been counted.
func UptimePercentage(operational, downtime int) float64 {
	total := operational + downtime
	if total == 0 {
		return 0
	}
	return float64(operational) / float64(total) * 100
}

func (e *Equipment) Status() domain.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Equipment) Efficiency() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.efficiency
}

func (e *Equipment) CurrentCapacity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentCapacity
}

func (e *Equipment) Temperature() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.temperature
}

func (e *Equipment) Health() domain.Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthLocked()
}

// Events returns a copy of the whole event log.
func (e *Equipment) Events() []domain.Event {
	return e.EventsSince(0)
}

// EventsSince returns the entries appended at or after position from, so a
// caller can keep a cursor into the log.
func (e *Equipment) EventsSince(from int) []domain.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if from >= len(e.events) {
		return nil
	}
	out := make([]domain.Event, len(e.events)-from)
	copy(out, e.events[from:])
	return out
}

// EventCount is the current length of the event log.
func (e *Equipment) EventCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

// Snapshot captures the persisted view of the unit at ts.
func (e *Equipment) Snapshot(ts time.Time) domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.Snapshot{
		EquipmentID:       e.spec.ID,
		Status:            e.status,
		EfficiencyPercent: e.efficiency * 100,
		Temperature:       e.temperature,
		Timestamp:         ts,
	}
}

func (e *Equipment) failLocked(reason string) {
	e.status = domain.StatusFailed
	e.failureCount++
	e.appendEventLocked(domain.EventFailure, reason)
}

func (e *Equipment) appendEventLocked(kind domain.EventKind, msg string) {
	e.events = append(e.events, domain.Event{
		ID:      uuid.NewString(),
		Time:    e.now(),
		Kind:    kind,
		Message: msg,
	})
}

func (e *Equipment) healthLocked() domain.Health {
	switch {
	case e.status == domain.StatusFailed:
		return domain.HealthCritical
	case e.temperature > e.spec.WarnTemperature:
		return domain.HealthWarning
	default:
		return domain.HealthHealthy
	}
}

func (e *Equipment) resultLocked() TickResult {
	return TickResult{
		Status:          e.status,
		CurrentCapacity: e.currentCapacity,
		Temperature:     e.temperature,
	}
}
