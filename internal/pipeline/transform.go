package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// Report headers set on every output message.
const (
	HeaderStatus      = "status"
	HeaderCompletedAt = "completed_at"
	HeaderErrorKind   = "error_kind"
)

// Calibrator runs one calibration request.
type Calibrator interface {
	Calibrate(ctx context.Context, req calibration.Request) (calibration.Report, error)
}

// CalibrationTransformer implements Transformer by decoding a request,
// calibrating it, and serializing the report.
type CalibrationTransformer struct {
	calibrator Calibrator
}

// NewTransformer creates a CalibrationTransformer backed by c.
func NewTransformer(c Calibrator) *CalibrationTransformer {
	return &CalibrationTransformer{calibrator: c}
}

// Transform answers every decodable request with a report message, including
// requests whose calibration failed. It returns an error only for undecodable
// payloads and for cancellation.
func (t *CalibrationTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := calibration.DecodeRequest(raw.Value)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	if req.ID == "" && len(raw.Key) > 0 {
		req.ID = string(raw.Key)
	}

	report, err := t.calibrator.Calibrate(ctx, req)
	if err != nil && ctx.Err() != nil {
		return domain.OutputEvent{}, ctx.Err()
	}
	return SerializeReport(report)
}

// SerializeReport converts a report into a sink message keyed by run ID.
func SerializeReport(report calibration.Report) (domain.OutputEvent, error) {
	value, err := json.Marshal(report)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("marshal report %s: %w", report.ID, err)
	}

	headers := map[string]string{
		HeaderStatus:      string(report.Status),
		HeaderCompletedAt: report.CompletedAt.Format(time.RFC3339),
	}
	if report.Error != nil {
		headers[HeaderErrorKind] = report.Error.Kind
	}
	return domain.OutputEvent{
		Key:     []byte(report.ID),
		Value:   value,
		Headers: headers,
	}, nil
}
