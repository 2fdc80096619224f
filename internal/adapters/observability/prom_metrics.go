package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghalamif/twinfleet/internal/ports"
)

type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the fleet metrics on reg. A nil logger disables logging.
func NewPromObs(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricTicks:              counter(ports.MetricTicks, "Equipment ticks executed."),
		ports.MetricReadingsPersisted:  counter(ports.MetricReadingsPersisted, "Sensor readings written to the store."),
		ports.MetricSnapshotsPersisted: counter(ports.MetricSnapshotsPersisted, "Equipment snapshots written to the store."),
		ports.MetricWriteFailures:      counter(ports.MetricWriteFailures, "Records the store failed to persist."),
		ports.MetricEquipmentFailures:  counter(ports.MetricEquipmentFailures, "Failures recorded by units, one per cause."),
		ports.MetricMaintenance:        counter(ports.MetricMaintenance, "Maintenance actions triggered by the advisor or operators."),
		ports.MetricOutOfRangeReadings: counter(ports.MetricOutOfRangeReadings, "Readings outside the sensor's calibrated range."),
		ports.MetricReportFailures:     counter(ports.MetricReportFailures, "Report batches a reporter rejected."),
		ports.MetricReportsDropped:     counter(ports.MetricReportsDropped, "Reports lost due to queue backpressure."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricUnitsFailed:       gauge(ports.MetricUnitsFailed, "Units currently in Failed state."),
		ports.MetricReportQueueLength: gauge(ports.MetricReportQueueLength, "Reports buffered for asynchronous delivery."),
		ports.MetricJournalSizeBytes:  gauge(ports.MetricJournalSizeBytes, "Bytes held by the local journal store."),
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricIterationLatency,
		Help:    "Wall time of one fleet iteration, excluding the sleep.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	if reg != nil {
		for _, c := range counters {
			reg.MustRegister(c)
		}
		for _, g := range gauges {
			reg.MustRegister(g)
		}
		reg.MustRegister(latency)
	}

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricIterationLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordWriteFailure(kind, key string, err error) {
	p.IncCounter(ports.MetricWriteFailures, 1)
	p.log.Warn("store_write_failed",
		zap.String("kind", kind),
		zap.String("key", key),
		zap.Error(err))
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
