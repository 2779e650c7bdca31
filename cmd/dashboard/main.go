package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"checkinbot/internal/config"
	"checkinbot/internal/dashboard"
	"checkinbot/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.Path(), "path to the bot configuration file")
	days := flag.Int("days", 7, "number of days in the daily summary")
	limit := flag.Int("limit", 20, "number of recent and failed records to list")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	data, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Only the ledger location and timezone are needed, so keys and the
	// rest of the validation are skipped.
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	if _, err := os.Stat(cfg.DatabaseFile); err != nil {
		return fmt.Errorf("ledger %s: %w", cfg.DatabaseFile, err)
	}

	store, err := storage.NewSqliteStorage(cfg.DatabaseFile)
	if err != nil {
		return err
	}
	defer store.Close()

	report := dashboard.Build(context.Background(), store, dashboard.Options{
		Days:        *days,
		RecentLimit: *limit,
		DryRun:      cfg.DryRun,
		Location:    location,
	})

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return report.WriteText(os.Stdout)
}
