package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spcguard/internal/config"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/normalize"
)

var ErrDropped = errors.New("measurement channel full")

func SendNonBlocking(ctx context.Context, out chan<- model.Measurement, m model.Measurement, logger *slog.Logger) bool {
	select {
	case out <- m:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("measurement channel full, dropping measurement", "parameter_id", m.ParameterID, "measurement_id", m.ID)
		}
		metrics.MeasurementsDropped.WithLabelValues(m.Source).Inc()
		return false
	}
}

// emit normalizes one parsed record and hands it to the engine channel.
// Records flagged invalid by the source are skipped silently.
func emit(ctx context.Context, fields *normalize.MeasurementFields, cfg *config.Config, source string, out chan<- model.Measurement, logger *slog.Logger) error {
	m, err := normalize.Normalize(*fields, cfg)
	if err != nil {
		if errors.Is(err, normalize.ErrExcluded) {
			return err
		}
		metrics.MeasurementsRejected.WithLabelValues(source).Inc()
		if logger != nil {
			logger.Warn(source+" normalize error", "err", err)
		}
		return err
	}
	m.Source = source
	if !SendNonBlocking(ctx, out, m, logger) {
		return ErrDropped
	}
	return nil
}

type lineStats struct {
	accepted int
	excluded int
	rejected int
}

func (s *lineStats) record(err error) {
	switch {
	case err == nil:
		s.accepted++
	case errors.Is(err, normalize.ErrExcluded):
		s.excluded++
	default:
		s.rejected++
	}
}

// handleLine parses one stream line and emits it. Blank lines and CSV
// headers are not counted.
func handleLine(ctx context.Context, line string, parser *Parser, cfg *config.Config, source string, out chan<- model.Measurement, stats *lineStats, logger *slog.Logger) {
	fields, err := parser.ParseLine(line)
	if err != nil {
		metrics.MeasurementsRejected.WithLabelValues(source).Inc()
		stats.record(err)
		return
	}
	if fields == nil {
		return
	}
	stats.record(emit(ctx, fields, cfg, source, out, logger))
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
