package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"livetrade/internal/broker"
	"livetrade/internal/config"
	"livetrade/internal/engine"
	"livetrade/internal/httpapi"
	"livetrade/internal/store"
	"livetrade/internal/util"
)

// stopTimeout bounds how long shutdown waits for the worker to drain.
const stopTimeout = 10 * time.Second

func main() {
	autostart := flag.Bool("autostart", true, "start the adapter and log in at boot")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := run(cfg, logger, *autostart); err != nil {
		logger.Error("livetrade-server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, autostart bool) error {
	session, err := newSession(cfg, logger)
	if err != nil {
		return err
	}

	journal, reader, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	adapter := engine.NewAdapter(session, engine.Options{
		PollInterval:      cfg.Engine.PollInterval,
		ReconcileInterval: cfg.Engine.ReconcileInterval,
		Journal:           journal,
		Risk: engine.RiskLimits{
			MaxOrderQty: cfg.Engine.MaxOrderQty,
			MaxNotional: cfg.Engine.MaxNotional,
		},
		Logger: logger,
	})

	// The worker outlives the signal context so Stop can drain it cleanly.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if autostart {
		if err := adapter.Start(runCtx); err != nil {
			return fmt.Errorf("starting adapter: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewServer(runCtx, adapter, reader, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("livetrade-server listening", "addr", httpServer.Addr, "broker", cfg.Broker.Kind,
			"journal", cfg.Journal.Kind)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		adapter.Stop()
		select {
		case <-adapter.Done():
		case <-time.After(stopTimeout):
			logger.Warn("adapter did not stop in time, cancelling worker")
			runCancel()
			<-adapter.Done()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newSession(cfg *config.Config, logger *slog.Logger) (broker.Session, error) {
	switch cfg.Broker.Kind {
	case "alpaca":
		return broker.NewAlpacaSession(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
			cfg.Alpaca.RateLimitPerMin, logger), nil
	case "simulator":
		return broker.NewSimulatorSession(broker.SimulatorConfig{
			Latency:  cfg.Simulator.Latency,
			FillStep: cfg.Simulator.FillStep,
			Cash:     cfg.Simulator.Cash,
			Prices:   cfg.Simulator.Prices,
		}), nil
	}
	return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
}

// journal is what both store implementations provide.
type journal interface {
	store.OrderJournal
	store.JournalReader
}

func openJournal(cfg config.Journal) (store.OrderJournal, store.JournalReader, error) {
	var j journal
	switch cfg.Kind {
	case "none":
		return nil, nil, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating journal dir: %w", err)
		}
		sj, err := store.NewSQLiteJournal(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite journal: %w", err)
		}
		j = sj
	case "parquet":
		j = store.NewParquetJournal(cfg.DataDir)
	default:
		return nil, nil, fmt.Errorf("unknown journal kind %q", cfg.Kind)
	}
	return j, j, nil
}
