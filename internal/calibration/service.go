// Package calibration runs base-temperature calibrations for the service
// surfaces (HTTP, Kafka and the CLI) and turns outcomes into reports.
package calibration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/observability"
)

// Status is the outcome of a calibration run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ReportError describes why a run failed. Kind is one of the domain error kinds.
type ReportError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the complete answer to a Request. Failed runs carry Error and the
// validation details gathered before the failure.
type Report struct {
	ID             string                     `json:"id"`
	Status         Status                     `json:"status"`
	Error          *ReportError               `json:"error,omitempty"`
	Config         domain.ScanConfig          `json:"config"`
	Result         *domain.OptimizationResult `json:"result,omitempty"`
	Interpretation *domain.Interpretation     `json:"interpretation,omitempty"`
	Validation     domain.ValidationReport    `json:"validation"`
	CompletedAt    time.Time                  `json:"completed_at"`
}

// Service calibrates requests against a set of default scan settings.
type Service struct {
	defaults domain.ScanConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service. metrics may be nil.
func NewService(defaults domain.ScanConfig, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{defaults: defaults, logger: logger, metrics: metrics}
}

// Defaults returns the scan settings requests are merged into.
func (s *Service) Defaults() domain.ScanConfig {
	return s.defaults
}

// CheckReadiness always succeeds; the service holds no external connections.
func (s *Service) CheckReadiness(_ context.Context) error {
	return nil
}

// Calibrate validates the request data, scans the Tb grid and interprets the
// best fit. The returned Report is always populated; the error is the domain
// failure behind a failed report, suitable for errors.As and domain.ErrorKind.
func (s *Service) Calibrate(ctx context.Context, req Request) (Report, error) {
	start := time.Now()
	report := Report{
		ID:     req.ID,
		Config: req.Config.Apply(s.defaults),
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	logger := s.logger.With("run_id", report.ID)

	return s.run(ctx, logger, report, req.observations(), start)
}

// CalibrateObservations runs a calibration on already-decoded observations,
// as read from a file by the CLI.
func (s *Service) CalibrateObservations(ctx context.Context, id string, cfg domain.ScanConfig, input map[string][]domain.Observation) (Report, error) {
	report := Report{ID: id, Config: cfg}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	return s.run(ctx, s.logger.With("run_id", report.ID), report, input, time.Now())
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, report Report, input map[string][]domain.Observation, start time.Time) (Report, error) {
	if err := report.Config.Validate(); err != nil {
		return s.fail(logger, report, err), err
	}

	store, validation, err := domain.NewStore(input)
	report.Validation = validation
	if len(validation.Dropped) > 0 || len(validation.FailedGroups) > 0 {
		logger.Warn("observations excluded",
			"dropped_records", len(validation.Dropped),
			"failed_groups", len(validation.FailedGroups),
		)
	}
	if err != nil {
		return s.fail(logger, report, err), err
	}

	res, err := domain.Optimize(ctx, store, report.Config)
	if err != nil {
		return s.fail(logger, report, err), err
	}

	interp := domain.Interpret(res)
	report.Status = StatusSucceeded
	report.Result = &res
	report.Interpretation = &interp
	report.CompletedAt = res.CompletedAt

	s.observe(res, time.Since(start))
	logger.Info("calibration completed",
		"best_tb", res.BestTb,
		"r2", res.BestRegression.R2,
		"groups", res.Groups,
		"points", res.Points,
		"candidates", len(res.ScanCurve),
	)
	return report, nil
}

func (s *Service) fail(logger *slog.Logger, report Report, err error) Report {
	kind := domain.ErrorKind(err)
	report.Status = StatusFailed
	report.Error = &ReportError{Kind: kind, Message: err.Error()}
	report.CompletedAt = domain.Now()

	if s.metrics != nil {
		s.metrics.Calibrations.WithLabelValues(string(StatusFailed)).Inc()
		s.metrics.CalibrationErrors.WithLabelValues(kind).Inc()
	}
	logger.Warn("calibration failed", "kind", kind, "error", err)
	return report
}

func (s *Service) observe(res domain.OptimizationResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	valid := 0
	for _, p := range res.ScanCurve {
		if p.Valid {
			valid++
		}
	}
	s.metrics.Calibrations.WithLabelValues(string(StatusSucceeded)).Inc()
	s.metrics.CandidatesEvaluated.WithLabelValues("valid").Add(float64(valid))
	s.metrics.CandidatesEvaluated.WithLabelValues("invalid").Add(float64(len(res.ScanCurve) - valid))
	s.metrics.CalibrationDuration.Observe(elapsed.Seconds())
	s.metrics.BestTb.Observe(res.BestTb)
}
