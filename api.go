package twinfleet

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	base "github.com/ghalamif/twinfleet/pkg/twinfleet"
)

// Re-exported errors for convenience.
var (
	ErrChannelReporterClosed = base.ErrChannelReporterClosed
	ErrInvalidLimit          = base.ErrInvalidLimit
)

// Type aliases so consumers can import github.com/ghalamif/twinfleet directly.
type (
	Config          = base.Config
	FleetConfig     = base.FleetConfig
	EquipmentConfig = base.EquipmentConfig
	SensorConfig    = base.SensorConfig
	AdvisorConfig   = base.AdvisorConfig
	AdvisorPoint    = base.AdvisorPoint
	StoreConfig     = base.StoreConfig
	ReportConfig    = base.ReportConfig
	KafkaConfig     = base.KafkaConfig
	MetricsConfig   = base.MetricsConfig
	LogConfig       = base.LogConfig
	Policy          = base.Policy
	TempRange       = base.TempRange
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	PersistOption   = base.PersistOption
	ReportOption    = base.ReportOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	StatusReport    = base.StatusReport
	Reading         = base.Reading
	Snapshot        = base.Snapshot
	Event           = base.Event
	Status          = base.Status
	Health          = base.Health
	Store           = base.Store
	Reporter        = base.Reporter
	ReportPublisher = base.ReportPublisher
	ReportFunc      = base.ReportFunc
	Observability   = base.Observability
	Field           = base.Field
	History         = base.History
	JournalStats    = base.JournalStats
)

const (
	BackendMemory   = base.BackendMemory
	BackendJournal  = base.BackendJournal
	BackendPostgres = base.BackendPostgres
	BackendDuckDB   = base.BackendDuckDB

	StatusOperational = base.StatusOperational
	StatusFailed      = base.StatusFailed

	HealthHealthy  = base.HealthHealthy
	HealthWarning  = base.HealthWarning
	HealthCritical = base.HealthCritical
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func PersistStore(s Store) PersistOption {
	return base.PersistStore(s)
}

func PersistBackend(backend string) PersistOption {
	return base.PersistBackend(backend)
}

func ReportTo(r Reporter) ReportOption {
	return base.ReportTo(r)
}

func ReportCallback(name string, fn ReportFunc) ReportOption {
	return base.ReportCallback(name, fn)
}

func ReportObservability(obs Observability) ReportOption {
	return base.ReportObservability(obs)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithReporter(r Reporter) RuntimeOption {
	return base.WithReporter(r)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return base.WithRegistry(reg)
}

func WithLogger(l *zap.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithClock(now func() time.Time) RuntimeOption {
	return base.WithClock(now)
}

// Store and history.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	return base.OpenStore(ctx, cfg)
}

func OpenHistory(dir string) (*History, error) {
	return base.OpenHistory(dir)
}

// Reporter adapters.
func NewCallbackReporter(name string, fn ReportFunc) Reporter {
	return base.NewCallbackReporter(name, fn)
}

func NewChannelReporter(name string, buffer int) (Reporter, <-chan []StatusReport, func()) {
	return base.NewChannelReporter(name, buffer)
}

// Handler is a convenience for mounting a runtime's status API elsewhere.
func Handler(rt *Runtime) http.Handler {
	return rt.Handler()
}
