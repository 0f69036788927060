package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"spcguard/internal/config"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/normalize"
)

const (
	maxRESTBody       = 2 << 20
	maxReportedErrors = 20
)

// RESTServer accepts measurement uploads: a JSON object, a JSON array,
// newline-delimited JSON, or a CSV/key=value export with one record per line.
type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.Measurement
	logger *slog.Logger
}

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	Excluded int      `json:"excluded"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

func NewRESTServer(cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) *RESTServer {
	return &RESTServer{cfg: cfg, out: out, logger: logger}
}

func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /measurements", s.handleMeasurements)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           NewRESTServer(cfg, out, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && logger != nil {
			logger.Error("rest ingest server error", "err", err)
		}
	}()
	return httpServer
}

func (s *RESTServer) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	var resp ingestResponse
	err := ReadRecords(http.MaxBytesReader(w, r.Body, maxRESTBody), NewParser(), func(label string, fields *normalize.MeasurementFields, err error) {
		if err != nil {
			metrics.MeasurementsRejected.WithLabelValues("rest").Inc()
		} else {
			err = emit(r.Context(), fields, cfg, "rest", s.out, s.logger)
		}
		switch {
		case err == nil:
			resp.Accepted++
		case errors.Is(err, normalize.ErrExcluded):
			resp.Excluded++
		default:
			resp.Failed++
			if len(resp.Errors) < maxReportedErrors {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", label, err))
			}
		}
	})
	switch {
	case err != nil:
		writeStatus(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case resp.Accepted+resp.Excluded+resp.Failed == 0:
		writeStatus(w, http.StatusBadRequest, map[string]string{"error": "no records"})
		return
	}
	status := http.StatusOK
	if resp.Accepted == 0 && resp.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeStatus(w, status, resp)
}

func writeStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
