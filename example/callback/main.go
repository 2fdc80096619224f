package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/twinfleet"
)

func main() {
	flow, err := twinfleet.Conf("../../data/config.yaml",
		twinfleet.WithFlowOptions(twinfleet.WithClock(time.Now)))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(iteration int, reports []twinfleet.StatusReport) error {
		for _, r := range reports {
			fmt.Printf("#%d %s %-20s status=%s health=%s temp=%.1f risk=%.2f events=%d\n",
				iteration,
				r.Timestamp.Format(time.RFC3339),
				r.ID,
				r.Status,
				r.Health,
				r.Temperature,
				r.RiskScore,
				len(r.Events),
			)
		}
		return nil
	}

	err = flow.
		Persist(twinfleet.PersistBackend(twinfleet.BackendMemory)).
		Run(ctx, twinfleet.ReportCallback("stdout", callback))
	if err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
