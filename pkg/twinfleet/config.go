package twinfleet

import (
	"github.com/ghalamif/twinfleet/internal/app/advisor"
	"github.com/ghalamif/twinfleet/internal/app/config"
	"github.com/ghalamif/twinfleet/internal/ports"
	"github.com/ghalamif/twinfleet/internal/twin"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// FleetConfig holds loop timing, risk threshold and seed.
	FleetConfig = config.FleetConfig
	// EquipmentConfig defines one unit.
	EquipmentConfig = config.EquipmentConfig
	// SensorConfig defines one sensor and the unit it is attached to.
	SensorConfig = config.SensorConfig
	// AdvisorConfig carries the seed series for the risk trend.
	AdvisorConfig = config.AdvisorConfig
	// AdvisorPoint is one (time, health) seed observation.
	AdvisorPoint = advisor.Point
	// StoreConfig selects and configures the persistence backend.
	StoreConfig = config.StoreConfig
	// ReportConfig selects report sinks.
	ReportConfig = config.ReportConfig
	// KafkaConfig configures the Kafka report sink.
	KafkaConfig = config.KafkaConfig
	// MetricsConfig configures the HTTP listener for metrics and the status API.
	MetricsConfig = config.MetricsConfig
	// LogConfig configures the zap logger.
	LogConfig = config.LogConfig
	// Policy bounds the asynchronous report queue.
	Policy = ports.Policy
	// TempRange is a closed operating temperature band.
	TempRange = twin.TempRange
)

// Store backends accepted by StoreConfig.Backend.
const (
	BackendMemory   = config.BackendMemory
	BackendJournal  = config.BackendJournal
	BackendPostgres = config.BackendPostgres
	BackendDuckDB   = config.BackendDuckDB
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes, defaults and validates an in-memory YAML document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
