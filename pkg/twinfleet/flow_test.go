package twinfleet

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestConfFromConfigAndBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithLogger(zap.NewNop())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	storeStub := &stubStore{}
	reporter := NewCallbackReporter("cb", func(int, []StatusReport) error { return nil })

	rt, err := flow.
		Persist(PersistStore(storeStub)).
		Report(
			ReportTo(reporter),
			ReportObservability(&stubObservability{}),
		)
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if rt.store != storeStub {
		t.Fatalf("expected custom store to be wired")
	}
	if rt.reporters[len(rt.reporters)-1] != reporter {
		t.Fatalf("expected custom reporter to be wired last")
	}
}

func TestFlowPersistBackendSwitchesStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Dir = t.TempDir()

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	flow.Persist(PersistBackend(BackendJournal))
	if cfg.Store.Backend != BackendJournal {
		t.Fatalf("expected backend to switch to journal, got %q", cfg.Store.Backend)
	}

	rt, err := flow.Options(WithLogger(zap.NewNop())).Report()
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())
	if rt.Store().Name() != "journal" {
		t.Fatalf("expected journal store, got %q", rt.Store().Name())
	}
}

func TestFlowRunUsesReportCallback(t *testing.T) {
	cfg := testConfig(t)
	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithLogger(zap.NewNop())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	var iterations []int
	err = flow.Run(context.Background(), ReportCallback("collect", func(iteration int, reports []StatusReport) error {
		iterations = append(iterations, iteration)
		return nil
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(iterations) != 3 || iterations[0] != 1 || iterations[2] != 3 {
		t.Fatalf("expected iterations 1..3, got %v", iterations)
	}
}

func TestConfLoadsSampleConfig(t *testing.T) {
	flow, err := Conf("../../data/config.yaml")
	if err != nil {
		t.Fatalf("Conf returned error: %v", err)
	}
	if got := len(flow.Config().Equipment); got != 2 {
		t.Fatalf("expected 2 units in the sample fleet, got %d", got)
	}
}

func TestNilFlow(t *testing.T) {
	var f *Flow
	if f.Config() != nil || f.Persist() != nil {
		t.Fatalf("expected nil flow helpers to return nil")
	}
	if _, err := f.Report(); err == nil {
		t.Fatalf("expected error from nil flow")
	}
}
