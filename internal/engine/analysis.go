package engine

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"spcguard/internal/catalog"
	"spcguard/internal/config"
	"spcguard/internal/model"
	"spcguard/internal/spc"
)

// analysis holds the display-rounded results next to the unrounded limits
// and capability that alert decisions compare against.
type analysis struct {
	limits     model.ControlLimits
	capability model.ProcessCapability
	violations []model.RunRuleViolation
	zones      []model.Zone
	histogram  model.Histogram

	raw    model.ControlLimits
	rawCpk *float64
}

func analyze(series []model.Measurement, entry catalog.Entry, spec model.SpecLimits, subgroupSize int, cfg *config.Config) (analysis, error) {
	size := subgroupSize
	if size <= 0 {
		size = entry.SubgroupSize
	}
	if size <= 0 {
		size = cfg.SPC.DefaultSubgroupSize
	}
	raw, err := spc.ComputeLimits(series, spc.LimitsOptions{SubgroupSize: size, NonNegative: entry.NonNegative})
	if err != nil {
		return analysis{}, err
	}
	capability := spc.Capability(raw, spec, spc.CapabilityOptions{LongTermPpk: cfg.SPC.PpkLongTermSigma})
	out := analysis{
		limits:     spc.RoundLimits(raw),
		capability: spc.RoundCapability(capability),
		raw:        raw,
		rawCpk:     capability.Cpk,
	}
	if raw.Sufficient {
		out.violations = spc.DetectViolations(raw.ChartValues, raw.Center, raw.UCL, raw.LCL)
		out.zones = spc.Zones(raw.ChartValues, raw.Center, raw.UCL)
	}
	values := make([]float64, len(series))
	for i, m := range series {
		values[i] = m.Value
	}
	out.histogram = spc.BuildHistogram(values, spc.DefaultHistogramBins)
	return out, nil
}

func summarize(entry catalog.Entry, series []model.Measurement, a analysis, now time.Time) model.ParameterSummary {
	sum := model.ParameterSummary{
		ParameterID: entry.Parameter.ID,
		Name:        entry.Parameter.Name,
		Unit:        entry.Parameter.Unit,
		Points:      len(series),
		Sufficient:  a.limits.Sufficient,
		Cpk:         a.capability.Cpk,
		UpdatedAt:   now.UTC(),
	}
	if !a.limits.Sufficient {
		return sum
	}
	sum.Mean = a.limits.Center
	sum.UCL = a.limits.UCL
	sum.LCL = a.limits.LCL
	for _, v := range a.violations {
		if v.Rule == spc.RuleBeyondLimits {
			sum.OutOfControl++
		}
	}
	return sum
}

func (e *Engine) Series(ctx context.Context, parameterID string, filter model.SeriesFilter) ([]model.Measurement, error) {
	if _, err := e.catalog.Lookup(parameterID); err != nil {
		return nil, err
	}
	state, err := e.getSeries(ctx, parameterID, e.config())
	if err != nil {
		return nil, err
	}
	all := state.Snapshot()
	out := make([]model.Measurement, 0, len(all))
	for _, m := range all {
		if filter.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Engine) Chart(ctx context.Context, parameterID string, filter model.SeriesFilter, subgroupSize int) (model.ChartReport, error) {
	entry, err := e.catalog.Lookup(parameterID)
	if err != nil {
		return model.ChartReport{}, err
	}
	series, err := e.Series(ctx, parameterID, filter)
	if err != nil {
		return model.ChartReport{}, err
	}
	spec, err := e.catalog.SpecLimits(parameterID, filter.ProductID)
	if err != nil {
		return model.ChartReport{}, err
	}
	a, err := analyze(series, entry, spec, subgroupSize, e.config())
	if err != nil {
		return model.ChartReport{}, err
	}
	violations := a.violations
	if violations == nil {
		violations = []model.RunRuleViolation{}
	}
	return model.ChartReport{
		Parameter:    entry.Parameter,
		Spec:         spec,
		Limits:       a.limits,
		Capability:   a.capability,
		Violations:   violations,
		Zones:        a.zones,
		Histogram:    a.histogram,
		Measurements: series,
	}, nil
}

func (e *Engine) Correlation(ctx context.Context, xID, yID string, filter model.SeriesFilter) (model.Correlation, error) {
	x, err := e.Series(ctx, xID, filter)
	if err != nil {
		return model.Correlation{}, err
	}
	y, err := e.Series(ctx, yID, filter)
	if err != nil {
		return model.Correlation{}, err
	}
	c := spc.Correlate(x, y)
	c.Coefficient = spc.Round(c.Coefficient, spc.DisplayPlaces)
	if c.Points == nil {
		c.Points = []model.CorrelationPoint{}
	}
	return c, nil
}

// Summary evaluates every catalogued parameter in parallel. A parameter that
// cannot be charted reports its error instead of failing the rollup.
func (e *Engine) Summary(ctx context.Context, filter model.SeriesFilter) ([]model.ParameterSummary, error) {
	cfg := e.config()
	ids := e.catalog.IDs()
	out := make([]model.ParameterSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			entry, err := e.catalog.Lookup(id)
			if err != nil {
				out[i] = model.ParameterSummary{ParameterID: id, Error: err.Error()}
				return nil
			}
			series, err := e.Series(gctx, id, filter)
			if err != nil {
				return err
			}
			spec, err := e.catalog.SpecLimits(id, filter.ProductID)
			if err != nil {
				out[i] = model.ParameterSummary{ParameterID: id, Error: err.Error()}
				return nil
			}
			a, err := analyze(series, entry, spec, 0, cfg)
			if err != nil {
				out[i] = model.ParameterSummary{ParameterID: id, Name: entry.Parameter.Name, Points: len(series), Error: err.Error()}
				return nil
			}
			out[i] = summarize(entry, series, a, e.now())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
