package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/app"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/diagnostics"
	"github.com/imrishuroy/go-payment-reconciler/internal/logging"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

// audit lists pending orders that never reached a terminal status and publishes their count.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	olderThan := flag.Duration("older-than", 30*time.Minute, "report orders created before now minus this")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.RoleAudit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the report
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init services", zap.Error(err))
	}
	defer a.Close()

	stale, err := run(ctx, a.Pending, a.Counter(), time.Now().Add(-*olderThan))
	if err != nil {
		logger.Fatal("audit failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stale); err != nil {
		logger.Fatal("write report", zap.Error(err))
	}
	logger.Info("audit finished", zap.Int("stale", len(stale)), zap.Duration("older_than", *olderThan))
}

type staleLister interface {
	ListStale(ctx context.Context, before time.Time) ([]pending.Order, error)
}

func run(ctx context.Context, store staleLister, metrics diagnostics.Counter, before time.Time) ([]pending.Order, error) {
	stale, err := store.ListStale(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	if stale == nil {
		stale = []pending.Order{}
	}
	if metrics != nil {
		if err := metrics.Count(ctx, diagnostics.MetricStale, float64(len(stale)), nil); err != nil {
			return nil, err
		}
	}
	return stale, nil
}
