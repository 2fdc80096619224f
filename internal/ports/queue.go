package ports

import "github.com/ghalamif/twinfleet/internal/domain"

type QueuedReport struct {
	Seq    uint64
	Report domain.StatusReport
}

type ReportQueue interface {
	Enqueue(seq uint64, r domain.StatusReport) bool
	DequeueBatch(max int) []QueuedReport
	Len() int
}
