package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/twinfleet"
)

func main() {
	flow, err := twinfleet.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The runtime closes the reporter on shutdown, which ends the worker's range loop.
	reporter, batches, _ := twinfleet.NewChannelReporter("failures", 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		failureWatcher(batches)
	}()

	if err := flow.Run(ctx, twinfleet.ReportTo(reporter)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
	<-done
}

func failureWatcher(batches <-chan []twinfleet.StatusReport) {
	down := make(map[string]bool)
	for batch := range batches {
		for _, r := range batch {
			failed := r.Status == twinfleet.StatusFailed
			if failed && !down[r.ID] {
				fmt.Printf("iteration %d: %s went down (failures=%d)\n", r.Iteration, r.ID, r.FailureCount)
			}
			if !failed && down[r.ID] {
				fmt.Printf("iteration %d: %s is back (downtime=%.1fh)\n", r.Iteration, r.ID, r.DowntimeHours)
			}
			down[r.ID] = failed
		}
	}
}
