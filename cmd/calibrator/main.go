package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	httpadapter "github.com/couchcryptid/tb-calibration/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tb-calibration/internal/adapter/kafka"
	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/config"
	"github.com/couchcryptid/tb-calibration/internal/observability"
	"github.com/couchcryptid/tb-calibration/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	svc := calibration.NewService(cfg.Calibration, logger, metrics)
	logger.Info("calibration defaults",
		"tb_min", cfg.Calibration.TbMin,
		"tb_max", cfg.Calibration.TbMax,
		"tb_step", cfg.Calibration.TbStep,
		"pooling", cfg.Calibration.Pooling,
		"criterion", cfg.Calibration.Criterion,
		"workers", cfg.Calibration.Workers,
	)

	var calibrator calibration.Calibrator = svc
	if cfg.ReportCacheSize > 0 {
		calibrator = calibration.NewCachedCalibrator(svc, cfg.ReportCacheSize, metrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The Kafka worker is feature-flagged via KAFKA_ENABLED; without it the
	// service answers HTTP requests only and is ready immediately.
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		p      *pipeline.Pipeline
	)
	var ready sharedobs.ReadinessChecker = svc
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p = pipeline.New(reader, pipeline.NewTransformer(calibrator), writer, logger, metrics, cfg.BatchSize)
		ready = p
		logger.Info("kafka worker enabled",
			"brokers", cfg.KafkaBrokers,
			"source_topic", cfg.KafkaSourceTopic,
			"sink_topic", cfg.KafkaSinkTopic,
		)
	} else {
		logger.Info("kafka worker disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, calibrator, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start Kafka worker.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
