package twin

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// overloadBand is the width below Max that overload readings are drawn from.
const overloadBand = 10.0

// Mode is a sensor's fixed failure-mode policy.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeStuck    Mode = "stuck"
	ModeOverload Mode = "overload"
	ModeDrift    Mode = "drift"
)

// ParseMode is case-insensitive; an empty string means normal.
func ParseMode(v string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(v))); m {
	case "":
		return ModeNormal, nil
	case ModeNormal, ModeStuck, ModeOverload, ModeDrift:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sensor mode %q", v)
	}
}

// SensorSpec defines a sensor and its calibration. InitialValue, when set,
// seeds the stuck/drift state instead of a random draw.
type SensorSpec struct {
	ID           string
	EquipmentID  string
	Type         string
	Unit         string
	Min          float64
	Max          float64
	Mode         Mode
	DriftRate    float64
	InitialValue *float64
}

func (s SensorSpec) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if s.EquipmentID == "" {
		errs = append(errs, errors.New("equipment_id is required"))
	}
	if s.Min >= s.Max {
		errs = append(errs, fmt.Errorf("min %g must be below max %g", s.Min, s.Max))
	}
	if _, err := ParseMode(string(s.Mode)); err != nil {
		errs = append(errs, err)
	}
	if s.DriftRate < 0 {
		errs = append(errs, fmt.Errorf("drift_rate must be >= 0, got %g", s.DriftRate))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sensor %q: %w", s.ID, err)
	}
	return nil
}

// Sensor produces one reading per call according to its mode.
type Sensor struct {
	mu        sync.Mutex
	spec      SensorSpec
	rng       *rand.Rand
	lastValue float64
}

func NewSensor(spec SensorSpec, rng *rand.Rand) (*Sensor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("twin: random source is required")
	}
	spec.Mode, _ = ParseMode(string(spec.Mode))

	s := &Sensor{spec: spec, rng: rng}
	if spec.InitialValue != nil {
		s.lastValue = clamp(*spec.InitialValue, spec.Min, spec.Max)
	} else {
		s.lastValue = s.uniform(spec.Min, spec.Max)
	}
	return s, nil
}

func (s *Sensor) ID() string { return s.spec.ID }

func (s *Sensor) EquipmentID() string { return s.spec.EquipmentID }

func (s *Sensor) Spec() SensorSpec { return s.spec }

// InRange reports whether v lies within the calibrated bounds.
func (s *Sensor) InRange(v float64) bool {
	return v >= s.spec.Min && v <= s.spec.Max
}

// Read never fails. Overload readings are not clamped, so callers must not
// assume they respect Min.
func (s *Sensor) Read() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.spec.Mode {
	case ModeStuck:
		return s.lastValue
	case ModeOverload:
		return s.uniform(s.spec.Max-overloadBand, s.spec.Max)
	case ModeDrift:
		step := s.uniform(-s.spec.DriftRate, s.spec.DriftRate)
		s.lastValue = clamp(s.lastValue+step, s.spec.Min, s.spec.Max)
		return s.lastValue
	default:
		return s.uniform(s.spec.Min, s.spec.Max)
	}
}

func (s *Sensor) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
