package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// maxRequestBytes bounds a calibration request body.
const maxRequestBytes = 10 << 20

// Calibrator runs one calibration request.
type Calibrator interface {
	Calibrate(ctx context.Context, req calibration.Request) (calibration.Report, error)
}

// Server exposes the calibration API alongside health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	calibrator Calibrator
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /v1/calibrations routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, calibrator Calibrator, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		calibrator: calibrator,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/calibrations", s.handleCalibrate)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleCalibrate answers 200 with a succeeded report and 422 with a failed
// one. Bodies that are not a request get 400, or 413 when oversized.
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sharedobs.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	req, err := calibration.DecodeRequest(body)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	report, err := s.calibrator.Calibrate(r.Context(), req)
	sharedobs.WriteJSON(w, statusFor(err), report)
}

func statusFor(err error) int {
	switch domain.ErrorKind(err) {
	case "":
		return http.StatusOK
	case domain.KindCanceled:
		return http.StatusServiceUnavailable
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
