// Command freshchaind serves the perishable-goods custody ledger over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"freshchain/internal/adapters/archive"
	"freshchain/internal/config"
	"freshchain/internal/core"
	"freshchain/internal/infra/blob"
	"freshchain/internal/infra/zaplog"
	"freshchain/pkg/domain"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("daemon failed", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenStorage(core.StorageDriver(cfg.Storage.Driver), core.StorageOptions{
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, domain.Identity(cfg.Admin), engine)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore(store, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := core.NewPrometheusMetricsRecorder(registry)
	audit := zaplog.NewAuditRecorder(logger.Named("audit"))

	bands := make(map[string]domain.SafetyBand, len(cfg.Bands))
	for class, band := range cfg.Bands {
		bands[class] = domain.SafetyBand{
			TempMin: band.TempMin,
			TempMax: band.TempMax,
			HumMin:  band.HumMin,
			HumMax:  band.HumMax,
		}
	}

	svc := core.NewService(store,
		core.WithLogger(zaplog.New(logger.Named("custody"))),
		core.WithAuditRecorder(audit),
		core.WithMetricsRecorder(metrics),
		core.WithSafetyBands(bands),
		core.WithEscrowPolicy(core.EscrowPolicy{ForfeitTo: core.ForfeitBeneficiary(cfg.Escrow.ForfeitTo)}),
		core.WithDefaultRequiredStake(cfg.Escrow.DefaultRequiredStake),
	)

	blobStore, err := blob.OpenDriver(ctx, blob.Driver(cfg.Blob.Driver), cfg.Blob.FSRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	archiver := archive.New(blobStore, audit)
	archiver.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := archiver.Stop(stopCtx); err != nil {
			logger.Warn("archiver stop", zap.Error(err))
		}
	}()

	api := newServer(svc, archiver, blobStore, registry, logger.Named("http"))
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver), zap.String("blob", cfg.Blob.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func closeStore(store core.PersistentStore, logger *zap.Logger) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
}
