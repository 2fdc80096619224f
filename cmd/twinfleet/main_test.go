package main

import (
	"bufio"
	"strings"
	"testing"
)

func TestScanMetricsPicksUnlabelledSamples(t *testing.T) {
	exposition := `# HELP twinfleet_ticks_total Equipment ticks executed.
# TYPE twinfleet_ticks_total counter
twinfleet_ticks_total 42
twinfleet_units_failed 1
twinfleet_journal_size_bytes 2.048e+06
twinfleet_iteration_latency_seconds_bucket{le="0.001"} 3
`
	values, err := scanMetrics(bufio.NewScanner(strings.NewReader(exposition)), statsMetrics)
	if err != nil {
		t.Fatalf("scanMetrics returned error: %v", err)
	}
	if values["twinfleet_ticks_total"] != 42 {
		t.Fatalf("expected ticks 42, got %v", values["twinfleet_ticks_total"])
	}
	if values["twinfleet_units_failed"] != 1 {
		t.Fatalf("expected 1 failed unit, got %v", values["twinfleet_units_failed"])
	}
	if values["twinfleet_journal_size_bytes"] != 2048000 {
		t.Fatalf("expected journal bytes 2048000, got %v", values["twinfleet_journal_size_bytes"])
	}
	if _, ok := values["twinfleet_report_queue_length"]; ok {
		t.Fatalf("absent metrics must not be reported")
	}
}
