package queue

import (
	"sync"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// MemQueue is a bounded in-memory report queue that preserves FIFO ordering.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.QueuedReport
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]ports.QueuedReport, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(seq uint64, r domain.StatusReport) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, ports.QueuedReport{Seq: seq, Report: r})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedReport {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedReport, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.ReportQueue = (*MemQueue)(nil)
