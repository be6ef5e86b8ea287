package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	BatchSize          int
	BatchFlushInterval time.Duration

	// ReportCacheSize bounds the successful-report cache; 0 disables it.
	ReportCacheSize int

	// Calibration holds the scan defaults applied to every request; requests
	// may override individual fields.
	Calibration domain.ScanConfig
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	calibration, err := loadCalibration()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("REPORT_CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := true
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "calibration-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "calibration-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "tb-calibrator"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		ReportCacheSize:    cacheSize,
		Calibration:        calibration,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

// loadCalibration reads the TB_* scan defaults and validates the result.
func loadCalibration() (domain.ScanConfig, error) {
	c := domain.DefaultScanConfig()

	var err error
	if c.TbMin, err = parseFloat("TB_MIN", c.TbMin); err != nil {
		return c, err
	}
	if c.TbMax, err = parseFloat("TB_MAX", c.TbMax); err != nil {
		return c, err
	}
	if c.TbStep, err = parseFloat("TB_STEP", c.TbStep); err != nil {
		return c, err
	}
	if c.StartIndex, err = parseInt("EMERGENCE_INDEX", c.StartIndex); err != nil {
		return c, err
	}
	if c.Workers, err = parseInt("SCAN_WORKERS", c.Workers); err != nil {
		return c, err
	}
	if c.MaxCandidates, err = parseInt("MAX_CANDIDATES", c.MaxCandidates); err != nil {
		return c, err
	}
	c.Pooling = domain.PoolingMode(sharedcfg.EnvOrDefault("POOLING_MODE", string(c.Pooling)))
	c.Criterion = domain.Criterion(sharedcfg.EnvOrDefault("SELECTION_CRITERION", string(c.Criterion)))

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid calibration settings (TB_MIN, TB_MAX, TB_STEP, POOLING_MODE, SELECTION_CRITERION, EMERGENCE_INDEX, SCAN_WORKERS, MAX_CANDIDATES): %w", err)
	}
	return c, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
