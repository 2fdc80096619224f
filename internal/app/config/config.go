package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/twinfleet/internal/app/advisor"
	"github.com/ghalamif/twinfleet/internal/ports"
	"github.com/ghalamif/twinfleet/internal/twin"
)

// ErrUnknownEquipment is returned when a sensor references a unit that is not
// defined in the fleet.
var ErrUnknownEquipment = errors.New("config: unknown equipment id")

const (
	BackendMemory   = "memory"
	BackendJournal  = "journal"
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"

	SinkLog   = "log"
	SinkKafka = "kafka"
)

type Config struct {
	Fleet     FleetConfig       `yaml:"fleet"`
	Advisor   AdvisorConfig     `yaml:"advisor"`
	Equipment []EquipmentConfig `yaml:"equipment"`
	Sensors   []SensorConfig    `yaml:"sensors"`
	Store     StoreConfig       `yaml:"store"`
	Report    ReportConfig      `yaml:"report"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Log       LogConfig         `yaml:"log"`
}

type FleetConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	RiskThreshold float64       `yaml:"risk_threshold"`
	Workers       int           `yaml:"workers"`
	Seed          uint64        `yaml:"seed"`
	HoursPerTick  float64       `yaml:"hours_per_tick"`
	Iterations    int           `yaml:"iterations"` // 0 runs until stopped
}

type AdvisorConfig struct {
	Points []advisor.Point `yaml:"points"`
}

type EquipmentConfig struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Location        string         `yaml:"location"`
	MaxCapacity     float64        `yaml:"max_capacity"`
	Efficiency      *float64       `yaml:"efficiency"`
	Temperature     float64        `yaml:"temperature"`
	OperatingRange  twin.TempRange `yaml:"operating_range"`
	WarnTemperature float64        `yaml:"warn_temperature"`
	FailureRate     float64        `yaml:"failure_rate"`
	FailureTypes    []string       `yaml:"failure_types"`
	MaxSpeed        float64        `yaml:"max_speed"`
	InstalledAt     time.Time      `yaml:"installed_at"`
}

// DefaultEfficiency applies when a unit omits efficiency.
const DefaultEfficiency = 1.0

func (e EquipmentConfig) Spec() twin.EquipmentSpec {
	efficiency := DefaultEfficiency
	if e.Efficiency != nil {
		efficiency = *e.Efficiency
	}
	return twin.EquipmentSpec{
		ID:              e.ID,
		Name:            e.Name,
		Location:        e.Location,
		MaxCapacity:     e.MaxCapacity,
		Efficiency:      efficiency,
		Temperature:     e.Temperature,
		OperatingRange:  e.OperatingRange,
		WarnTemperature: e.WarnTemperature,
		FailureRate:     e.FailureRate,
		FailureTypes:    e.FailureTypes,
		MaxSpeed:        e.MaxSpeed,
		InstalledAt:     e.InstalledAt,
	}
}

type SensorConfig struct {
	ID           string   `yaml:"id"`
	EquipmentID  string   `yaml:"equipment_id"`
	Type         string   `yaml:"type"`
	Unit         string   `yaml:"unit"`
	Min          float64  `yaml:"min"`
	Max          float64  `yaml:"max"`
	Mode         string   `yaml:"mode"`
	DriftRate    float64  `yaml:"drift_rate"`
	InitialValue *float64 `yaml:"initial_value"`
}

func (s SensorConfig) Spec() twin.SensorSpec {
	return twin.SensorSpec{
		ID:           s.ID,
		EquipmentID:  s.EquipmentID,
		Type:         s.Type,
		Unit:         s.Unit,
		Min:          s.Min,
		Max:          s.Max,
		Mode:         twin.Mode(s.Mode),
		DriftRate:    s.DriftRate,
		InitialValue: s.InitialValue,
	}
}

type StoreConfig struct {
	Backend        string        `yaml:"backend"`
	Dir            string        `yaml:"dir"`
	Fsync          bool          `yaml:"fsync"`
	DSN            string        `yaml:"dsn"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectRetries uint          `yaml:"connect_retries"`
}

type ReportConfig struct {
	Sinks  []string     `yaml:"sinks"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Policy ports.Policy `yaml:"policy"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads a YAML file, applies FLEET_* environment overrides and defaults,
// then validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var envKeys = []string{
	"tick_interval",
	"risk_threshold",
	"workers",
	"seed",
	"store_backend",
	"store_dsn",
	"metrics_addr",
	"kafka_brokers",
	"log_level",
}

func (c *Config) applyEnv() error {
	v := viper.New()
	v.SetEnvPrefix("FLEET")
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if v.IsSet("tick_interval") {
		d, err := time.ParseDuration(v.GetString("tick_interval"))
		if err != nil {
			return fmt.Errorf("FLEET_TICK_INTERVAL: %w", err)
		}
		c.Fleet.TickInterval = d
	}
	if v.IsSet("risk_threshold") {
		c.Fleet.RiskThreshold = v.GetFloat64("risk_threshold")
	}
	if v.IsSet("workers") {
		c.Fleet.Workers = v.GetInt("workers")
	}
	if v.IsSet("seed") {
		c.Fleet.Seed = v.GetUint64("seed")
	}
	if v.IsSet("store_backend") {
		c.Store.Backend = v.GetString("store_backend")
	}
	if v.IsSet("store_dsn") {
		c.Store.DSN = v.GetString("store_dsn")
	}
	if v.IsSet("metrics_addr") {
		c.Metrics.Addr = v.GetString("metrics_addr")
	}
	if v.IsSet("kafka_brokers") {
		var brokers []string
		for _, b := range strings.Split(v.GetString("kafka_brokers"), ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Report.Kafka.Brokers = brokers
	}
	if v.IsSet("log_level") {
		c.Log.Level = v.GetString("log_level")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Fleet.TickInterval == 0 {
		c.Fleet.TickInterval = time.Second
	}
	if c.Fleet.Workers == 0 {
		c.Fleet.Workers = 4
	}
	if c.Fleet.HoursPerTick == 0 {
		c.Fleet.HoursPerTick = 1
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "./data/journal"
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 2 * time.Second
	}
	if c.Store.ConnectRetries == 0 {
		c.Store.ConnectRetries = 5
	}
	if len(c.Report.Sinks) == 0 {
		c.Report.Sinks = []string{SinkLog}
	}
	if c.Report.Kafka.Topic == "" {
		c.Report.Kafka.Topic = "twinfleet.status"
	}
	if c.Report.Kafka.ClientID == "" {
		c.Report.Kafka.ClientID = "twinfleet"
	}
	if c.Report.Policy.MaxQueueLen == 0 {
		c.Report.Policy.MaxQueueLen = 10_000
	}
	if c.Report.Policy.MaxBatchSize == 0 {
		c.Report.Policy.MaxBatchSize = 500
	}
	if c.Report.Policy.IdleSleep == 0 {
		c.Report.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Report.Policy.OnQueueFull == "" {
		c.Report.Policy.OnQueueFull = "drop"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Fleet.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("fleet.tick_interval must be >= 0, got %s", c.Fleet.TickInterval))
	}
	if c.Fleet.Workers < 1 {
		errs = append(errs, fmt.Errorf("fleet.workers must be >= 1, got %d", c.Fleet.Workers))
	}
	if c.Fleet.HoursPerTick <= 0 {
		errs = append(errs, fmt.Errorf("fleet.hours_per_tick must be > 0, got %g", c.Fleet.HoursPerTick))
	}
	if c.Fleet.Iterations < 0 {
		errs = append(errs, fmt.Errorf("fleet.iterations must be >= 0, got %d", c.Fleet.Iterations))
	}

	if _, err := advisor.New(c.Advisor.Points); err != nil {
		errs = append(errs, fmt.Errorf("advisor.points: %w", err))
	}

	if len(c.Equipment) == 0 {
		errs = append(errs, errors.New("equipment: at least one unit is required"))
	}
	units := make(map[string]bool, len(c.Equipment))
	for _, e := range c.Equipment {
		if units[e.ID] {
			errs = append(errs, fmt.Errorf("equipment %q: duplicate id", e.ID))
		}
		units[e.ID] = true
		if err := e.Spec().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	sensors := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if sensors[s.ID] {
			errs = append(errs, fmt.Errorf("sensor %q: duplicate id", s.ID))
		}
		sensors[s.ID] = true
		if s.EquipmentID != "" && !units[s.EquipmentID] {
			errs = append(errs, fmt.Errorf("sensor %q: %w %q", s.ID, ErrUnknownEquipment, s.EquipmentID))
		}
		if err := s.Spec().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Store.Backend {
	case BackendMemory, BackendDuckDB:
	case BackendJournal:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the journal backend"))
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", c.Store.Backend))
	}
	if c.Store.Timeout < 0 {
		errs = append(errs, fmt.Errorf("store.timeout must be >= 0, got %s", c.Store.Timeout))
	}

	for _, sink := range c.Report.Sinks {
		switch sink {
		case SinkLog:
		case SinkKafka:
			if len(c.Report.Kafka.Brokers) == 0 {
				errs = append(errs, errors.New("report.kafka.brokers is required for the kafka sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("report.sinks: unknown sink %q", sink))
		}
	}
	if p := c.Report.Policy.OnQueueFull; p != "drop" && p != "block" {
		errs = append(errs, fmt.Errorf("report.policy.on_queue_full must be drop or block, got %q", p))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// HasSink reports whether name is among the configured report sinks.
func (c *Config) HasSink(name string) bool {
	return slices.Contains(c.Report.Sinks, name)
}
