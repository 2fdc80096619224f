package twinfleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const testFleetYAML = `
fleet:
  tick_interval: 1ms
  risk_threshold: 10
  workers: 2
  seed: 7
  iterations: 3
advisor:
  points:
    - {time: 0, value: 98}
    - {time: 24, value: 95}
equipment:
  - id: M1
    name: Motor
    location: Hall A
    max_capacity: 1000
    efficiency: 0.9
    temperature: 25
    operating_range: {low: 0, high: 95}
    failure_rate: 0
    failure_types: [bearing_wear]
    max_speed: 3000
sensors:
  - {id: M1-TEMP, equipment_id: M1, type: temperature, unit: C, min: 0, max: 120, mode: normal}
metrics:
  addr: "127.0.0.1:0"
`

var testEpoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(testFleetYAML))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	return cfg
}

func fixedClock() time.Time { return testEpoch }

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	cfg := testConfig(t)
	storeStub := &stubStore{}
	obsStub := &stubObservability{}
	reporterStub := NewCallbackReporter("stub", func(int, []StatusReport) error { return nil })

	rt, err := NewRuntime(
		cfg,
		WithStore(storeStub),
		WithObservability(obsStub),
		WithReporter(reporterStub),
		WithRegistry(prometheus.NewRegistry()),
		WithLogger(zap.NewNop()),
		WithClock(fixedClock),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	if rt.store != storeStub {
		t.Fatalf("expected custom store to be used")
	}
	if rt.ownsStore {
		t.Fatalf("expected injected store to stay owned by the caller")
	}
	if rt.obs != obsStub {
		t.Fatalf("expected custom observability to be used")
	}
	if len(rt.reporters) != 2 || rt.reporters[1] != reporterStub {
		t.Fatalf("expected log reporter plus custom reporter, got %d reporters", len(rt.reporters))
	}

	if err := rt.Step(context.Background()); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if storeStub.readings != 1 || storeStub.snapshots != 1 {
		t.Fatalf("expected 1 reading and 1 snapshot, got %d/%d", storeStub.readings, storeStub.snapshots)
	}
	if storeStub.lastTimestamp != testEpoch {
		t.Fatalf("expected injected clock to stamp records, got %v", storeStub.lastTimestamp)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if storeStub.closed {
		t.Fatalf("runtime must not close a caller-owned store")
	}
}

func TestNewRuntimeRejectsUnknownSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Sinks = []string{"pigeon"}

	if _, err := NewRuntime(cfg, WithLogger(zap.NewNop())); err == nil {
		t.Fatalf("expected unknown sink to be rejected")
	}
}

func TestRuntimeRunDeliversEveryIteration(t *testing.T) {
	cfg := testConfig(t)
	reporter, ch, _ := NewChannelReporter("chan", 8)

	rt, err := NewRuntime(cfg, WithReporter(reporter), WithLogger(zap.NewNop()), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rt.Iteration() != 3 {
		t.Fatalf("expected 3 iterations, got %d", rt.Iteration())
	}

	var batches [][]StatusReport
	for batch := range ch {
		batches = append(batches, batch)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches before the channel closed, got %d", len(batches))
	}
	for i, batch := range batches {
		if len(batch) != 1 || batch[0].ID != "M1" {
			t.Fatalf("unexpected batch %d: %+v", i, batch)
		}
		if batch[0].Iteration != i+1 || batch[0].RunID != rt.RunID() {
			t.Fatalf("batch %d carries iteration %d run %q", i, batch[0].Iteration, batch[0].RunID)
		}
	}

	readings, err := rt.Store().QueryReadings(context.Background(), "M1-TEMP", 10)
	if err != nil {
		t.Fatalf("QueryReadings returned error: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("expected 3 persisted readings, got %d", len(readings))
	}
}

func TestRuntimeRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fleet.Iterations = 0

	rt, err := NewRuntime(cfg, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rt.Iteration() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected cancellation to be a clean stop, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
	if rt.Iteration() < 2 {
		t.Fatalf("expected the loop to have iterated, got %d", rt.Iteration())
	}
}

func TestRuntimeHandlerServesStatusAPI(t *testing.T) {
	cfg := testConfig(t)
	rt, err := NewRuntime(cfg, WithLogger(zap.NewNop()), WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if err := rt.Step(context.Background()); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/equipment", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/equipment, got %d", rec.Code)
	}
	var units []struct {
		ID               string   `json:"id"`
		OperationalTicks int      `json:"operational_ticks"`
		Sensors          []string `json:"sensors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &units); err != nil {
		t.Fatalf("decode equipment list: %v", err)
	}
	if len(units) != 1 || units[0].ID != "M1" || units[0].OperationalTicks != 1 {
		t.Fatalf("unexpected equipment list: %+v", units)
	}

	rec = httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "twinfleet_ticks_total 1") {
		t.Fatalf("expected tick counter in exposition, got %d:\n%s", rec.Code, rec.Body.String())
	}

	if err := rt.TriggerMaintenance("nope"); err == nil {
		t.Fatalf("expected unknown unit to be rejected")
	}
}

func TestRuntimeJournalSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Store.Backend = BackendJournal
	cfg.Store.Dir = dir

	rt, err := NewRuntime(cfg, WithLogger(zap.NewNop()), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	h, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("OpenHistory returned error: %v", err)
	}
	defer h.Close()

	stats := h.Stats()
	if stats.Readings != 3 || stats.Snapshots != 3 || stats.SizeBytes == 0 {
		t.Fatalf("unexpected journal stats: %+v", stats)
	}
	snaps, err := h.Snapshots(context.Background(), "M1", 2)
	if err != nil {
		t.Fatalf("Snapshots returned error: %v", err)
	}
	if len(snaps) != 2 || snaps[0].EquipmentID != "M1" {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
	if _, err := h.Readings(context.Background(), "M1-TEMP", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestOpenHistoryRejectsMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-written")

	if _, err := OpenHistory(dir); err == nil {
		t.Fatalf("expected OpenHistory to fail for a missing dir")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected OpenHistory to leave %s absent, stat err %v", dir, err)
	}
}

type stubStore struct {
	mu            sync.Mutex
	readings      int
	snapshots     int
	lastTimestamp time.Time
	closed        bool
}

func (s *stubStore) AppendReading(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings++
	s.lastTimestamp = r.Timestamp
	return nil
}

func (s *stubStore) AppendSnapshot(_ context.Context, _ Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	return nil
}

func (s *stubStore) QueryReadings(context.Context, string, int) ([]Reading, error) { return nil, nil }
func (s *stubStore) QuerySnapshots(context.Context, string, int) ([]Snapshot, error) {
	return nil, nil
}
func (s *stubStore) Name() string { return "stub" }
func (s *stubStore) Close() error {
	s.closed = true
	return nil
}

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)                 {}
func (s *stubObservability) LogError(string, error, ...Field)         {}
func (s *stubObservability) LogCritical(string, error, ...Field)      {}
func (s *stubObservability) IncCounter(string, float64)               {}
func (s *stubObservability) ObserveLatency(string, float64)           {}
func (s *stubObservability) SetGauge(string, float64)                 {}
func (s *stubObservability) RecordWriteFailure(string, string, error) {}
