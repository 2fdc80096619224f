package report

import (
	"context"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// LogReporter writes one structured line per unit per iteration.
type LogReporter struct {
	obs ports.Observability
}

func NewLogReporter(obs ports.Observability) *LogReporter {
	return &LogReporter{obs: obs}
}

func (l *LogReporter) Name() string { return "log" }

func (l *LogReporter) Report(_ context.Context, iteration int, reports []domain.StatusReport) error {
	for _, r := range reports {
		l.obs.LogInfo("unit_status",
			ports.Field{Key: "iteration", Value: iteration},
			ports.Field{Key: "equipment_id", Value: r.ID},
			ports.Field{Key: "status", Value: string(r.Status)},
			ports.Field{Key: "health", Value: string(r.Health)},
			ports.Field{Key: "efficiency_pct", Value: r.EfficiencyPercent},
			ports.Field{Key: "temperature", Value: r.Temperature},
			ports.Field{Key: "uptime_pct", Value: r.UptimePercentage},
			ports.Field{Key: "failures", Value: r.FailureCount},
			ports.Field{Key: "downtime_hours", Value: r.DowntimeHours},
			ports.Field{Key: "risk_score", Value: r.RiskScore},
			ports.Field{Key: "maintenance", Value: r.MaintenanceTriggered},
			ports.Field{Key: "new_events", Value: len(r.Events)},
			ports.Field{Key: "write_failures", Value: r.WriteFailures})
	}
	return nil
}

func (l *LogReporter) Close() error { return nil }

var _ ports.Reporter = (*LogReporter)(nil)
