package domain

import "fmt"

// Status is the operational state of an equipment unit.
type Status string

const (
	StatusOperational Status = "Operational"
	StatusFailed      Status = "Failed"
)

func (s Status) Valid() bool {
	return s == StatusOperational || s == StatusFailed
}

// ParseStatus accepts the canonical spelling only.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// Health is a coarse label derived from status and temperature.
type Health string

const (
	HealthHealthy  Health = "Healthy"
	HealthWarning  Health = "Warning"
	HealthCritical Health = "Critical"
)
