package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
	"qubeless/internal/usecase/pipeline"
)

// Server exposes the read-only on-demand surfaces of the pipeline: gate
// status re-evaluation and a health probe.
type Server struct {
	svc  *pipeline.Service
	addr string
}

func NewServer(svc *pipeline.Service, addr string) *Server {
	return &Server{svc: svc, addr: addr}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/v1/analyses/{analysisID}/gate", s.handleGateStatus)
	return r
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "httpapi"))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn(logCtx, "http shutdown failed", slog.Any("err", errs.Loggable(err)))
		}
	}()

	logging.Info(logCtx, "http listener starting", slog.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errs.Wrap(err, "serve http")
	}
	return nil
}

type gateConditionResponse struct {
	MetricKey string  `json:"metricKey"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Scope     string  `json:"scope"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
}

type gateStatusResponse struct {
	AnalysisID string                  `json:"analysisId"`
	Status     string                  `json:"status"`
	Conditions []gateConditionResponse `json:"conditions"`
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "analysisID")

	result, err := s.svc.EvaluateGateForAnalysis(r.Context(), analysisID)
	if err != nil {
		if errors.Is(err, ports.ErrAnalysisNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
			return
		}
		logging.Error(r.Context(), "gate evaluation failed", slog.Any("err", errs.Loggable(err)))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "gate evaluation failed"})
		return
	}

	writeJSON(w, http.StatusOK, toGateResponse(analysisID, result))
}

func toGateResponse(analysisID string, result analysis.GateResult) gateStatusResponse {
	resp := gateStatusResponse{
		AnalysisID: analysisID,
		Status:     string(result.Status),
		Conditions: make([]gateConditionResponse, 0, len(result.Conditions)),
	}
	for _, cond := range result.Conditions {
		resp.Conditions = append(resp.Conditions, gateConditionResponse{
			MetricKey: cond.Condition.MetricKey,
			Operator:  string(cond.Condition.Operator),
			Threshold: cond.Condition.Threshold,
			Scope:     string(cond.Condition.Scope),
			Actual:    cond.Actual,
			Passed:    cond.Passed,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
