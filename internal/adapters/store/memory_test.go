package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func reading(sensor string, v float64, offset time.Duration) domain.Reading {
	return domain.Reading{SensorID: sensor, EquipmentID: "EQ-1", Value: v, Timestamp: base.Add(offset)}
}

func TestMemoryStoreQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 5; i++ {
		if err := s.AppendReading(ctx, reading("S-1", float64(i), time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// other sensors never leak into the result
	if err := s.AppendReading(ctx, reading("S-2", 99, 10*time.Second)); err != nil {
		t.Fatalf("append S-2: %v", err)
	}

	got, err := s.QueryReadings(ctx, "S-1", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []domain.Reading{
		reading("S-1", 4, 4*time.Second),
		reading("S-1", 3, 3*time.Second),
		reading("S-1", 2, 2*time.Second),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected readings (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreOutOfOrderAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, off := range []int{2, 0, 3, 1} {
		snap := domain.Snapshot{EquipmentID: "EQ-1", Status: domain.StatusOperational, EfficiencyPercent: float64(off), Timestamp: base.Add(time.Duration(off) * time.Minute)}
		if err := s.AppendSnapshot(ctx, snap); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.QuerySnapshots(ctx, "EQ-1", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("snapshots not newest first at %d: %v after %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
	if got[0].EfficiencyPercent != 3 {
		t.Fatalf("expected newest snapshot first, got %+v", got[0])
	}
}

func TestMemoryStoreEqualTimestampsKeepArrivalOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		_ = s.AppendReading(ctx, reading("S-1", float64(i), 0))
	}
	got, _ := s.QueryReadings(ctx, "S-1", 3)
	if got[0].Value != 2 || got[2].Value != 0 {
		t.Fatalf("expected latest insert first on ties, got %+v", got)
	}
}

func TestMemoryStoreEmptyAndInvalidLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.QueryReadings(ctx, "missing", 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result for unknown sensor, got %v (%v)", got, err)
	}
	if _, err := s.QueryReadings(ctx, "S-1", 0); !errors.Is(err, ports.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := s.QuerySnapshots(ctx, "EQ-1", -1); !errors.Is(err, ports.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	if err := s.AppendReading(ctx, reading("S-1", 1, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r, _ := s.Counts(); r != 0 {
		t.Fatalf("cancelled append must not be stored, got %d readings", r)
	}
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.AppendReading(ctx, reading(fmt.Sprintf("S-%d", w%2), float64(i), time.Duration(i)*time.Millisecond))
				_, _ = s.QueryReadings(ctx, "S-0", 5)
			}
		}(w)
	}
	wg.Wait()

	if r, _ := s.Counts(); r != 400 {
		t.Fatalf("expected 400 readings, got %d", r)
	}
}
