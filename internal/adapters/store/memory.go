package store

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// MemoryStore keeps both logs in process memory. Per-key slices stay sorted
// by timestamp so queries are a reverse walk from the tail.
type MemoryStore struct {
	mu        sync.RWMutex
	readings  map[string][]domain.Reading
	snapshots map[string][]domain.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings:  make(map[string][]domain.Reading),
		snapshots: make(map[string][]domain.Snapshot),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) AppendReading(ctx context.Context, r domain.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[r.SensorID] = insertByTime(m.readings[r.SensorID], r, readingTime)
	return nil
}

func (m *MemoryStore) AppendSnapshot(ctx context.Context, s domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.EquipmentID] = insertByTime(m.snapshots[s.EquipmentID], s, snapshotTime)
	return nil
}

func (m *MemoryStore) QueryReadings(ctx context.Context, sensorID string, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		return nil, ports.ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.readings[sensorID], limit), nil
}

func (m *MemoryStore) QuerySnapshots(ctx context.Context, equipmentID string, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		return nil, ports.ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.snapshots[equipmentID], limit), nil
}

// Counts returns the total number of stored readings and snapshots.
func (m *MemoryStore) Counts() (readings, snapshots int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.readings {
		readings += len(v)
	}
	for _, v := range m.snapshots {
		snapshots += len(v)
	}
	return readings, snapshots
}

func (m *MemoryStore) Close() error { return nil }

func readingTime(r domain.Reading) time.Time   { return r.Timestamp }
func snapshotTime(s domain.Snapshot) time.Time { return s.Timestamp }

// insertByTime keeps s ordered by ts; equal timestamps keep arrival order.
func insertByTime[T any](s []T, v T, ts func(T) time.Time) []T {
	i := len(s)
	for i > 0 && ts(s[i-1]).After(ts(v)) {
		i--
	}
	s = append(s, v)
	if i < len(s)-1 {
		copy(s[i+1:], s[i:len(s)-1])
		s[i] = v
	}
	return s
}

func newestFirst[T any](s []T, limit int) []T {
	if limit > len(s) {
		limit = len(s)
	}
	out := make([]T, 0, limit)
	for i := len(s) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s[i])
	}
	return out
}

var _ ports.Store = (*MemoryStore)(nil)
