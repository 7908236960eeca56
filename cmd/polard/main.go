// Command polard runs the polar generation service: an HTTP API over an
// object store of raw sailing logs and versioned polar tables, with
// optional Kafka notifications and ClickHouse sample archival.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	chadapter "github.com/sailpolar/polar-service/internal/adapter/clickhouse"
	"github.com/sailpolar/polar-service/internal/adapter/httpapi"
	kafkaadapter "github.com/sailpolar/polar-service/internal/adapter/kafka"
	"github.com/sailpolar/polar-service/internal/config"
	"github.com/sailpolar/polar-service/internal/observability"
	"github.com/sailpolar/polar-service/internal/pipeline"
	"github.com/sailpolar/polar-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFSStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	library := storage.NewLibrary(store)

	// Notifier and archiver are feature-flagged via KAFKA_BROKERS and
	// CLICKHOUSE_ADDR.
	var notifier pipeline.Notifier
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer writer.Close()
		notifier = writer
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka notifications disabled")
	}

	var archiver pipeline.Archiver
	if cfg.ClickHouseEnabled() {
		ch, err := chadapter.NewArchiver(ctx, chadapter.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Table:    cfg.ClickHouseTable,
			Username: os.Getenv("CLICKHOUSE_USER"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		}, logger)
		if err != nil {
			logger.Error("clickhouse archiver init failed", "error", err)
			os.Exit(1)
		}
		defer ch.Close()
		archiver = ch
		logger.Info("clickhouse sample archive enabled", "addr", cfg.ClickHouseAddr)
	} else {
		logger.Info("clickhouse sample archive disabled")
	}

	generator := pipeline.New(library, library, notifier, archiver,
		cfg.Bins, cfg.Filter, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, library, generator, library,
		cfg.APIToken, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
