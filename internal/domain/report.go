package domain

import "time"

// StatusReport is handed to reporters once per unit per iteration.
type StatusReport struct {
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`

	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Location          string  `json:"location,omitempty"`
	Status            Status  `json:"status"`
	Health            Health  `json:"health"`
	EfficiencyPercent float64 `json:"efficiency_percent"`
	Temperature       float64 `json:"temperature"`
	CurrentCapacity   float64 `json:"current_capacity"`
	CurrentSpeed      float64 `json:"current_speed"`
	UptimePercentage  float64 `json:"uptime_percentage"`
	FailureCount      int     `json:"failure_count"`
	DowntimeHours     float64 `json:"downtime_hours"`
	Events            []Event `json:"events"`

	RiskScore            float64 `json:"risk_score"`
	MaintenanceTriggered bool    `json:"maintenance_triggered"`
	WriteFailures        int     `json:"write_failures"`
}
