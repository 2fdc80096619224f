// Package advisor scores maintenance risk from a linear health trend.
package advisor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ghalamif/twinfleet/internal/ports"
)

// ErrInsufficientData is returned when the seed series cannot define a line.
var ErrInsufficientData = errors.New("advisor: need at least 2 points with distinct times")

// Point is one (time, health metric) observation.
type Point struct {
	Time  float64 `yaml:"time" json:"time"`
	Value float64 `yaml:"value" json:"value"`
}

// Advisor holds an ordinary least squares fit computed once at construction.
// It is immutable and safe for concurrent use.
type Advisor struct {
	intercept float64
	slope     float64
	n         int
}

func New(points []Point) (*Advisor, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(points))
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		if math.IsNaN(p.Time) || math.IsNaN(p.Value) || math.IsInf(p.Time, 0) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("advisor: point %d is not finite", i)
		}
		xs[i] = p.Time
		ys[i] = p.Value
	}
	if stat.Variance(xs, nil) == 0 {
		return nil, fmt.Errorf("%w: all points share time %v", ErrInsufficientData, xs[0])
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return &Advisor{intercept: alpha, slope: beta, n: len(points)}, nil
}

// Predict extrapolates the trend to t without clamping.
func (a *Advisor) Predict(t float64) float64 {
	return a.intercept + a.slope*t
}

// CheckRisk reports whether the predicted health at t is below threshold.
func (a *Advisor) CheckRisk(t, threshold float64) bool {
	return a.Predict(t) < threshold
}

func (a *Advisor) Slope() float64     { return a.slope }
func (a *Advisor) Intercept() float64 { return a.intercept }
func (a *Advisor) Points() int        { return a.n }

var _ ports.RiskAdvisor = (*Advisor)(nil)
