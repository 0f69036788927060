package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/config"
	"spcguard/internal/model"
	"spcguard/internal/spc"
)

func TestChart(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngineForTest(testConfig())
	feed(t, eng, "ph", 10, 12, 11, 13, 12, 14, 13, 15, 14, 16)

	report, err := eng.Chart(ctx, "ph", model.SeriesFilter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ph", report.Parameter.ID)
	assert.True(t, report.Limits.Sufficient)
	assert.Equal(t, 13.0, report.Limits.Center)
	assert.Equal(t, 17.137, report.Limits.UCL)
	assert.Equal(t, 8.863, report.Limits.LCL)
	assert.Equal(t, 1.556, report.Limits.AverageMovingRange)
	require.NotNil(t, report.Capability.Cpk)
	assert.Equal(t, 3.142, *report.Capability.Cpk)
	assert.NotNil(t, report.Violations)
	assert.Empty(t, report.Violations)
	assert.Len(t, report.Zones, 10)
	assert.Len(t, report.Histogram.Bins, spc.DefaultHistogramBins)
	assert.Len(t, report.Measurements, 10)

	again, err := eng.Chart(ctx, "ph", model.SeriesFilter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, report, again, "recomputation over an unchanged series is stable")
}

func TestChartSubgroupOverrideAndFilter(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngineForTest(testConfig())
	feed(t, eng, "ph", 10, 12, 11, 13, 12, 14, 13, 15, 14, 16)

	report, err := eng.Chart(ctx, "ph", model.SeriesFilter{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Limits.SubgroupSize)
	require.NotNil(t, report.Limits.Secondary)
	assert.Len(t, report.Limits.Subgroups, 5)
	assert.Equal(t, "L0", report.Limits.Subgroups[0].Label)

	_, err = eng.Chart(ctx, "ph", model.SeriesFilter{}, 11)
	require.ErrorIs(t, err, spc.ErrUnsupportedSubgroupSize)

	filtered, err := eng.Chart(ctx, "ph", model.SeriesFilter{From: t0.Add(5 * time.Minute)}, 0)
	require.NoError(t, err)
	assert.Len(t, filtered.Measurements, 5)
	assert.Equal(t, 5, filtered.Limits.Points)

	one, err := eng.Chart(ctx, "ph", model.SeriesFilter{BatchID: "L3"}, 0)
	require.NoError(t, err)
	assert.False(t, one.Limits.Sufficient)
	assert.Nil(t, one.Capability.Cpk)
	assert.Empty(t, one.Violations)

	_, err = eng.Chart(ctx, "nope", model.SeriesFilter{}, 0)
	require.ErrorIs(t, err, model.ErrParameterNotFound)
}

func TestChartUsesProductSpecLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Parameters[0].ProductSpecs = map[string]model.SpecLimits{"cola": {LSL: ptr(12), USL: ptr(14)}}
	eng, _ := newEngineForTest(cfg)
	for i, v := range []float64{13, 13.2, 12.9, 13.1, 13} {
		m := measurement("ph", i, v)
		m.ProductID = "cola"
		_, err := eng.ProcessMeasurement(context.Background(), m)
		require.NoError(t, err)
	}
	report, err := eng.Chart(context.Background(), "ph", model.SeriesFilter{ProductID: "cola"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 12.0, *report.Spec.LSL)
	require.NotNil(t, report.Capability.Cpk)
	assert.Less(t, *report.Capability.Cpk, 5.0)
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngineForTest(testConfig())
	feed(t, eng, "ph", 1, 2, 3, 4, 5)
	feed(t, eng, "density", 2, 4, 6, 8, 10)

	c, err := eng.Correlation(ctx, "ph", "density", model.SeriesFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Coefficient)
	assert.Equal(t, "strong_positive", c.Strength)
	assert.Len(t, c.Points, 5)

	none, err := eng.Correlation(ctx, "ph", "acidity", model.SeriesFilter{})
	require.NoError(t, err)
	assert.Zero(t, none.Coefficient)
	assert.NotNil(t, none.Points)
	assert.Empty(t, none.Points)

	_, err = eng.Correlation(ctx, "ph", "nope", model.SeriesFilter{})
	require.ErrorIs(t, err, model.ErrParameterNotFound)
}

func TestSummary(t *testing.T) {
	cfg := testConfig()
	eng, _ := newEngineForTest(cfg)
	feed(t, eng, "ph", 10, 10.5, 10, 10.5, 10, 10.5, 10, 30)
	feed(t, eng, "acidity", 10, 10.5)

	summary, err := eng.Summary(context.Background(), model.SeriesFilter{})
	require.NoError(t, err)
	require.Len(t, summary, len(cfg.Parameters))

	byID := map[string]model.ParameterSummary{}
	for _, s := range summary {
		byID[s.ParameterID] = s
	}
	ph := byID["ph"]
	assert.Equal(t, 8, ph.Points)
	assert.True(t, ph.Sufficient)
	assert.Equal(t, 1, ph.OutOfControl)
	assert.Equal(t, 12.688, ph.Mean)

	acidity := byID["acidity"]
	assert.Equal(t, 2, acidity.Points)

	brix := byID["brix"]
	assert.Zero(t, brix.Points)
	assert.False(t, brix.Sufficient)
	assert.Empty(t, brix.Error)
}

func TestSummaryReportsConfigurationErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Parameters = append(cfg.Parameters, config.ParameterConfig{ID: "viscosity", SubgroupSize: 12})
	eng, _ := newEngineForTest(cfg)
	summary, err := eng.Summary(context.Background(), model.SeriesFilter{})
	require.NoError(t, err)
	var found bool
	for _, s := range summary {
		if s.ParameterID == "viscosity" {
			found = true
			assert.Contains(t, s.Error, fmt.Sprint(12))
		}
	}
	assert.True(t, found)
}
