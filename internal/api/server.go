package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spcguard/internal/config"
	"spcguard/internal/engine"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/spc"
)

type Service interface {
	Chart(ctx context.Context, parameterID string, filter model.SeriesFilter, subgroupSize int) (model.ChartReport, error)
	Correlation(ctx context.Context, xID, yID string, filter model.SeriesFilter) (model.Correlation, error)
	Summary(ctx context.Context, filter model.SeriesFilter) ([]model.ParameterSummary, error)
	CreateAlert(ctx context.Context, ref model.AlertRef, t model.Trigger) (model.Alert, error)
	Acknowledge(ctx context.Context, id, actor string) (model.Alert, error)
	Resolve(ctx context.Context, id, actor, notes, nonconformityID string) (model.Alert, error)
	Dismiss(ctx context.Context, id, actor string) (model.Alert, error)
	GetAlert(ctx context.Context, id string) (model.Alert, error)
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error)
	AlertStats(ctx context.Context) (model.AlertStats, error)
	Reset()
}

var _ Service = (*engine.Engine)(nil)

var errBadRequest = errors.New("bad request")

type Server struct {
	cfg       *config.Manager
	svc       Service
	summaries *metrics.Store
	logger    *slog.Logger
	validate  *validator.Validate
	version   string
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path"`
	Ingest     ingestStatus  `json:"ingest"`
	API        apiStatus     `json:"api"`
	Storage    storageStatus `json:"storage"`
	Publish    bool          `json:"publish"`
	Parameters int           `json:"parameters"`
	SPC        spcStatus     `json:"spc"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

type spcStatus struct {
	MinPoints   int     `json:"min_points"`
	CpkWarning  float64 `json:"cpk_warning"`
	CpkCritical float64 `json:"cpk_critical"`
	MaxPoints   int     `json:"max_points"`
	Retention   string  `json:"retention"`
}

func NewServer(cfg *config.Manager, svc Service, summaries *metrics.Store, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:       cfg,
		svc:       svc,
		summaries: summaries,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		version:   version,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /parameters", s.handleParameters)
	mux.HandleFunc("GET /parameters/{id}", s.handleParameter)
	mux.HandleFunc("GET /parameters/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /correlation", s.handleCorrelation)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("POST /alerts", s.handleCreateAlert)
	mux.HandleFunc("GET /alerts/stats", s.handleAlertStats)
	mux.HandleFunc("GET /alerts/{id}", s.handleGetAlert)
	mux.HandleFunc("POST /alerts/{id}/{action}", s.handleTransition)
	mux.HandleFunc("POST /admin/reset", s.handleReset)
	return mux
}

func Start(ctx context.Context, cfg *config.Manager, svc Service, summaries *metrics.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, svc, summaries, logger, version)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		API:        apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage:    storageStatus{Enabled: cfg.Storage.Enabled},
		Publish:    cfg.Publish.Enabled,
		Parameters: len(cfg.Parameters),
		SPC: spcStatus{
			MinPoints:   cfg.SPC.MinPoints,
			CpkWarning:  cfg.SPC.CpkWarning,
			CpkCritical: cfg.SPC.CpkCritical,
			MaxPoints:   cfg.SPC.Window.MaxPoints,
			Retention:   cfg.SPC.Window.Retention.String(),
		},
	}
	if cfg.Storage.Enabled {
		resp.Storage.Driver = cfg.Storage.Driver
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.svc.Reset()
	if s.summaries != nil {
		s.summaries.Clear()
	}
	if s.logger != nil {
		s.logger.Info("series windows reset")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, model.ErrParameterNotFound), errors.Is(err, model.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrDuplicateAlert):
		return http.StatusConflict
	case errors.Is(err, spc.ErrUnsupportedSubgroupSize):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest), errors.Is(err, model.ErrInvalidAlert),
		errors.Is(err, model.ErrInvalidMeasurement), errors.As(err, &verrs):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if s.logger != nil {
			s.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
