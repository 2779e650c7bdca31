package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/config"
	"checkinbot/internal/dashboard"
	"checkinbot/internal/httpserver"
	"checkinbot/internal/logger"
	"checkinbot/internal/scheduler"
	"checkinbot/internal/storage"
	"checkinbot/internal/tracker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkinbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	err = logger.Initialize(logger.Configuration{
		LogFile:   cfg.Log.File,
		ErrorFile: cfg.Log.ErrorFile,
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSqliteStorage(cfg.DatabaseFile)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := blockchain.NewClient(blockchain.Options{
		NodeURL:    cfg.NodeURL,
		Account:    cfg.Account,
		PostingKey: cfg.PostingKey,
		ActiveKey:  cfg.ActiveKey,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	evaluator := tracker.NewEvaluator(tracker.RequirementsFromConfig(cfg))
	orchestrator := tracker.NewOrchestrator(client, store, tracker.RewardSettingsFromConfig(cfg))
	group, groupCtx := errgroup.WithContext(ctx)
	trackerInstance := tracker.NewTracker(groupCtx, store, client, evaluator, orchestrator, tracker.PollSettingsFromConfig(cfg))

	logger.Info("checkinbot starting",
		zap.String("community", cfg.Community),
		zap.String("account", cfg.Account),
		zap.String("node", cfg.NodeURL),
		zap.String("transfer", cfg.Transfer().String()),
		zap.Int("daily cap", cfg.MaxDailyTransfers),
		zap.Bool("dry run", cfg.DryRun))

	if err := trackerInstance.VerifyAccount(); err != nil {
		return err
	}
	if _, err := trackerInstance.Reconcile(); err != nil {
		return err
	}

	group.Go(trackerInstance.Run)

	if cfg.HTTP.Addr != "" {
		server := httpserver.NewServer(cfg.HTTP.Addr, store, dashboard.Options{
			DryRun:    cfg.DryRun,
			Location:  cfg.Location(),
			Heartbeat: trackerInstance,
			Interval:  cfg.CheckInterval,
		})

		group.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.StatsSchedule != "" {
		jobs := scheduler.New(cfg.Location())
		err := jobs.Schedule(cfg.StatsSchedule, "daily stats", func() {
			dashboard.LogDailyStats(groupCtx, store, cfg.Location())
		})
		if err != nil {
			return err
		}
		jobs.Start()

		group.Go(func() error {
			<-groupCtx.Done()
			jobs.Stop()
			return nil
		})
	}

	err = group.Wait()
	logger.Info("checkinbot stopped")
	return err
}
