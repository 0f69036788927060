package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"spcguard/internal/catalog"
	"spcguard/internal/config"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/spc"
)

const (
	SkipInsufficientData = "insufficient data"
	SkipDuplicate        = "duplicate measurement"
	SkipOutOfOrder       = "out of order measurement"
	SkipNoNewChartPoint  = "subgroup incomplete"
)

// AlertRepository is where alerts are committed and transitioned.
// Implementations must insert a batch atomically, skip alerts whose
// idempotency key already exists and apply transitions as compare-and-set.
type AlertRepository interface {
	CreateAlerts(ctx context.Context, batch []model.Alert) ([]model.Alert, error)
	Transition(ctx context.Context, id string, t model.Transition) (model.Alert, error)
	Get(ctx context.Context, id string) (model.Alert, error)
	List(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error)
	Stats(ctx context.Context) (model.AlertStats, error)
}

type MeasurementRepository interface {
	SaveMeasurement(ctx context.Context, m model.Measurement) error
	LoadMeasurements(ctx context.Context, parameterID string, since time.Time, limit int) ([]model.Measurement, error)
}

type Publisher interface {
	Publish(ctx context.Context, alerts []model.Alert) error
}

// Result reports what one measurement produced. Skipped is set when alert
// generation did not run.
type Result struct {
	Alerts  []model.Alert
	Skipped string
}

type Engine struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	summaries *metrics.Store
	alerts    AlertRepository
	history   MeasurementRepository
	publisher Publisher
	cfg       atomic.Value
	series    map[string]*SeriesState
	mu        sync.Mutex
	delivered *DeliveryLog
	now       func() time.Time
}

// NewEngine wires the engine. history may be nil, in which case series live
// only in memory.
func NewEngine(cfg *config.Config, logger *slog.Logger, cat *catalog.Catalog, summaries *metrics.Store, alertRepo AlertRepository, history MeasurementRepository) *Engine {
	e := &Engine{
		logger:    logger,
		catalog:   cat,
		summaries: summaries,
		alerts:    alertRepo,
		history:   history,
		series:    make(map[string]*SeriesState),
		delivered: NewDeliveryLog(),
		now:       time.Now,
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.catalog.Load(cfg.Parameters)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Start(ctx context.Context, in <-chan model.Measurement) {
	go func() {
		for {
			select {
			case m, ok := <-in:
				if !ok {
					return
				}
				if _, err := e.ProcessMeasurement(ctx, m); err != nil && e.logger != nil {
					e.logger.Warn("measurement dropped",
						"parameter_id", m.ParameterID,
						"measurement_id", m.ID,
						"err", err,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) ProcessMeasurement(ctx context.Context, m model.Measurement) (Result, error) {
	cfg := e.config()
	if m.ID == "" || m.ParameterID == "" {
		return Result{}, fmt.Errorf("%w: id and parameter_id required", model.ErrInvalidMeasurement)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return Result{}, fmt.Errorf("%w: value %v", model.ErrInvalidMeasurement, m.Value)
	}
	entry, err := e.catalog.Lookup(m.ParameterID)
	if err != nil {
		return Result{}, err
	}
	key := m.ParameterID + "|" + m.ID
	retry := e.delivered.TakeRetry(key)
	if !retry && e.isDuplicate(key, cfg.SPC.DedupeWindow) {
		return Result{Skipped: SkipDuplicate}, nil
	}
	state, err := e.getSeries(ctx, m.ParameterID, cfg)
	if err != nil {
		e.delivered.Forget(key)
		return Result{}, err
	}
	if e.history != nil {
		if err := e.history.SaveMeasurement(ctx, m); err != nil {
			e.delivered.Forget(key)
			return Result{}, fmt.Errorf("save measurement %s: %w", m.ID, err)
		}
	}
	series, pos, ok := state.Add(m, cfg.SPC.Window.MaxPoints, cfg.SPC.Window.Retention)
	if !ok {
		if !retry {
			return Result{Skipped: SkipDuplicate}, nil
		}
		series = state.Snapshot()
		pos = slices.IndexFunc(series, func(s model.Measurement) bool { return s.ID == m.ID })
		if pos < 0 {
			return Result{Skipped: SkipDuplicate}, nil
		}
	} else {
		source := m.Source
		if source == "" {
			source = "unknown"
		}
		metrics.MeasurementsTotal.WithLabelValues(source).Inc()
	}
	if pos != len(series)-1 {
		return Result{Skipped: SkipOutOfOrder}, nil
	}
	res, err := e.evaluate(ctx, cfg, entry, series)
	if err != nil {
		e.delivered.MarkFailed(key)
	}
	return res, err
}

func (e *Engine) evaluate(ctx context.Context, cfg *config.Config, entry catalog.Entry, series []model.Measurement) (Result, error) {
	start := time.Now()
	defer func() { metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	newest := series[len(series)-1]
	spec, err := e.catalog.SpecLimits(entry.Parameter.ID, newest.ProductID)
	if err != nil {
		return Result{}, err
	}
	a, err := analyze(series, entry, spec, 0, cfg)
	if err != nil {
		return Result{}, err
	}
	if e.summaries != nil {
		e.summaries.Update(summarize(entry, series, a, e.now()))
	}
	if len(series) < cfg.SPC.MinPoints || !a.raw.Sufficient {
		return Result{Skipped: SkipInsufficientData}, nil
	}

	triggers := generateTriggers(cfg, newest, len(series), a)
	if len(triggers) == 0 {
		if size := a.limits.SubgroupSize; size > 1 && len(series)%size != 0 {
			return Result{Skipped: SkipNoNewChartPoint}, nil
		}
		return Result{}, nil
	}
	ref := model.AlertRef{
		ParameterID:   entry.Parameter.ID,
		MeasurementID: newest.ID,
		SampleID:      newest.SampleID,
		BatchID:       newest.BatchID,
	}
	now := e.now()
	batch := make([]model.Alert, 0, len(triggers))
	for _, t := range triggers {
		alert, err := model.NewAlert(ref, t, now)
		if err != nil {
			return Result{}, err
		}
		batch = append(batch, alert)
	}
	inserted, err := e.alerts.CreateAlerts(ctx, batch)
	if err != nil {
		return Result{}, fmt.Errorf("commit alerts for %s: %w", newest.ID, err)
	}
	for _, alert := range inserted {
		metrics.AlertsCreated.WithLabelValues(string(alert.Kind)).Inc()
		if e.logger != nil {
			e.logger.Warn("alert triggered",
				"parameter_id", alert.ParameterID,
				"kind", alert.Kind,
				"rule", alert.Rule,
				"measurement_id", alert.MeasurementID,
				"description", alert.Description,
			)
		}
	}
	e.publish(ctx, inserted)
	return Result{Alerts: inserted}, nil
}

// generateTriggers decides which alerts the newest measurement raises. For
// subgrouped charts the newest chart point only exists when the measurement
// completes a subgroup; capability is checked either way.
func generateTriggers(cfg *config.Config, newest model.Measurement, points int, a analysis) []model.Trigger {
	limits := a.limits
	idx := -1
	if limits.SubgroupSize <= 1 {
		idx = len(limits.ChartValues) - 1
	} else if points%limits.SubgroupSize == 0 {
		idx = len(limits.ChartValues) - 1
	}

	var triggers []model.Trigger
	if idx >= 0 {
		for _, v := range a.violations {
			if !v.Includes(idx) {
				continue
			}
			t := model.RunRuleTrigger{Rule: v.Rule, Description: v.Description, Value: newest.Value}
			if v.Rule == spc.RuleBeyondLimits {
				ucl := limits.UCL
				t.Threshold = &ucl
			}
			triggers = append(triggers, t)
		}
		raw := a.raw.ChartValues[idx]
		value := limits.ChartValues[idx]
		if raw > a.raw.UCL {
			triggers = append(triggers, model.OutOfSpecTrigger{Value: value, Limit: limits.UCL, Above: true})
		} else if raw < a.raw.LCL {
			triggers = append(triggers, model.OutOfSpecTrigger{Value: value, Limit: limits.LCL})
		}
	}
	if cpk := a.rawCpk; cpk != nil {
		shown := *a.capability.Cpk
		if *cpk < cfg.SPC.CpkCritical {
			triggers = append(triggers, model.CpkCriticalTrigger{Cpk: shown, Limit: cfg.SPC.CpkCritical})
		} else if *cpk < cfg.SPC.CpkWarning {
			triggers = append(triggers, model.CpkWarningTrigger{Cpk: shown, Limit: cfg.SPC.CpkWarning})
		}
	}
	return triggers
}

func (e *Engine) publish(ctx context.Context, alerts []model.Alert) {
	if e.publisher == nil || len(alerts) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, alerts); err != nil && e.logger != nil {
		e.logger.Warn("alert publish failed", "count", len(alerts), "err", err)
	}
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.series = make(map[string]*SeriesState)
	e.mu.Unlock()
	e.delivered.Clear()
}

func (e *Engine) getSeries(ctx context.Context, parameterID string, cfg *config.Config) (*SeriesState, error) {
	e.mu.Lock()
	state, ok := e.series[parameterID]
	if !ok {
		state = NewSeriesState()
		e.series[parameterID] = state
	}
	e.mu.Unlock()
	if e.history == nil || state.Hydrated() {
		return state, nil
	}
	// Retention is relative to the newest point, so Seed applies it.
	history, err := e.history.LoadMeasurements(ctx, parameterID, time.Time{}, cfg.SPC.Window.MaxPoints)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", parameterID, err)
	}
	state.Seed(history, cfg.SPC.Window.MaxPoints, cfg.SPC.Window.Retention)
	return state, nil
}

func (e *Engine) isDuplicate(key string, dedupeWindow time.Duration) bool {
	if dedupeWindow <= 0 {
		return false
	}
	return e.delivered.Seen(key, e.now().UTC(), dedupeWindow)
}
