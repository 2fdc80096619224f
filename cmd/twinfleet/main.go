package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/twinfleet"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("twinfleet %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to fleet configuration file")
	iterations := fs.Int("iterations", -1, "Stop after this many iterations (overrides fleet.iterations)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := twinfleet.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *iterations >= 0 {
		flow.Config().Fleet.Iterations = *iterations
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := twinfleet.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: %d units, %d sensors, store=%s, sinks=%s\n",
		*cfgPath, len(cfg.Equipment), len(cfg.Sensors), cfg.Store.Backend, strings.Join(cfg.Report.Sinks, ","))
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: *interval}
	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, client, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsMetrics = []string{
	"twinfleet_ticks_total",
	"twinfleet_units_failed",
	"twinfleet_maintenance_total",
	"twinfleet_write_failures_total",
	"twinfleet_report_queue_length",
	"twinfleet_journal_size_bytes",
}

func printMetricsSnapshot(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(bufio.NewScanner(resp.Body), statsMetrics)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] ticks=%.0f failed=%.0f maintenance=%.0f write_failures=%.0f queue=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["twinfleet_ticks_total"],
		values["twinfleet_units_failed"],
		values["twinfleet_maintenance_total"],
		values["twinfleet_write_failures_total"],
		values["twinfleet_report_queue_length"],
		values["twinfleet_journal_size_bytes"],
	)
	return nil
}

// scanMetrics picks unlabelled samples for the named metrics out of the
// Prometheus text format.
func scanMetrics(scanner *bufio.Scanner, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range names {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	return values, scanner.Err()
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dir := fs.String("dir", "./data/journal", "Journal directory written by a previous run")
	sensor := fs.String("sensor", "", "Sensor ID whose readings to print")
	equipment := fs.String("equipment", "", "Equipment ID whose snapshots to print")
	limit := fs.Int("limit", 20, "Maximum records to print, newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sensor == "" && *equipment == "" {
		return fmt.Errorf("one of -sensor or -equipment is required")
	}

	h, err := twinfleet.OpenHistory(*dir)
	if err != nil {
		return err
	}
	defer h.Close()

	stats := h.Stats()
	fmt.Fprintf(os.Stderr, "journal %s: %d readings, %d snapshots, %d bytes\n",
		h.Dir(), stats.Readings, stats.Snapshots, stats.SizeBytes)

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	if *sensor != "" {
		readings, err := h.Readings(ctx, *sensor, *limit)
		if err != nil {
			return err
		}
		for _, r := range readings {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}
	if *equipment != "" {
		snaps, err := h.Snapshots(ctx, *equipment, *limit)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func printUsage() {
	fmt.Printf(`TwinFleet CLI

Usage:
  twinfleet <command> [flags]

Commands:
  run        Simulate the fleet described by the config until interrupted
  validate   Load and validate a config file without starting the fleet
  stats      Poll the Prometheus metrics endpoint and print live counters
  history    Print readings or snapshots from a journal directory

Examples:
  twinfleet run -config ./data/config.yaml
  twinfleet run -config ./data/config.yaml -iterations 100
  twinfleet validate -config ./data/config.yaml
  twinfleet stats -url http://localhost:9100/metrics -interval 1s
  twinfleet history -dir ./data/journal -sensor M1-TEMP -limit 10
`)
}
