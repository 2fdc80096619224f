package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordWriteFailure counts and logs one record the store refused.
	RecordWriteFailure(kind, key string, err error)
}

type Field struct {
	Key   string
	Value any
}

// Metric names shared between the fleet loop and observability adapters.
const (
	MetricTicks              = "twinfleet_ticks_total"
	MetricReadingsPersisted  = "twinfleet_readings_persisted_total"
	MetricSnapshotsPersisted = "twinfleet_snapshots_persisted_total"
	MetricWriteFailures      = "twinfleet_write_failures_total"
	MetricEquipmentFailures  = "twinfleet_equipment_failures_total"
	MetricMaintenance        = "twinfleet_maintenance_total"
	MetricOutOfRangeReadings = "twinfleet_out_of_range_readings_total"
	MetricReportFailures     = "twinfleet_report_failures_total"
	MetricReportsDropped     = "twinfleet_reports_dropped_total"
	MetricUnitsFailed        = "twinfleet_units_failed"
	MetricReportQueueLength  = "twinfleet_report_queue_length"
	MetricJournalSizeBytes   = "twinfleet_journal_size_bytes"
	MetricIterationLatency   = "twinfleet_iteration_latency_seconds"
)
