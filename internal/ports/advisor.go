package ports

// RiskAdvisor scores maintenance risk at a point in simulated time.
type RiskAdvisor interface {
	Predict(t float64) float64
	CheckRisk(t, threshold float64) bool
}
