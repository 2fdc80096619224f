package twinfleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghalamif/twinfleet/internal/adapters/store"
)

// JournalStats describes the records and bytes held by a journal directory.
type JournalStats = store.JournalStats

// History reads a journal directory written by a previous run, without a
// fleet attached. The directory is never modified: a torn tail left by a
// crash is skipped, not truncated.
type History struct {
	dir   string
	index *store.MemoryStore
	stats JournalStats
}

// OpenHistory replays the journal under dir into memory. The directory and
// both log files must already exist.
func OpenHistory(dir string) (*History, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal dir is required")
	}
	index, stats, err := store.ReadJournal(dir)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	return &History{dir: dir, index: index, stats: stats}, nil
}

// Readings returns up to limit readings of a sensor, newest first.
func (h *History) Readings(ctx context.Context, sensorID string, limit int) ([]Reading, error) {
	if sensorID == "" {
		return nil, errors.New("sensor id is required")
	}
	return h.index.QueryReadings(ctx, sensorID, limit)
}

// Snapshots returns up to limit snapshots of a unit, newest first.
func (h *History) Snapshots(ctx context.Context, equipmentID string, limit int) ([]Snapshot, error) {
	if equipmentID == "" {
		return nil, errors.New("equipment id is required")
	}
	return h.index.QuerySnapshots(ctx, equipmentID, limit)
}

func (h *History) Stats() JournalStats { return h.stats }

func (h *History) Dir() string { return h.dir }

func (h *History) Close() error { return h.index.Close() }
