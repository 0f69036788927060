package spc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/model"
)

func batchSeries(param string, keys []string, values ...float64) []model.Measurement {
	out := make([]model.Measurement, len(values))
	for i, v := range values {
		out[i] = model.Measurement{ID: fmt.Sprintf("%s-%d", param, i), ParameterID: param, BatchID: keys[i], Value: v}
	}
	return out
}

func TestCorrelatePerfectLinear(t *testing.T) {
	keys := []string{"L1", "L2", "L3", "L4", "L5"}
	x := batchSeries("brix", keys, 1, 2, 3, 4, 5)
	y := batchSeries("density", keys, 2, 4, 6, 8, 10)

	c := Correlate(x, y)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
	assert.Equal(t, "strong_positive", c.Strength)
	require.Len(t, c.Points, 5)
	assert.Equal(t, model.CorrelationPoint{X: 3, Y: 6, Name: "L3"}, c.Points[2])
}

func TestCorrelateNegative(t *testing.T) {
	keys := []string{"L1", "L2", "L3", "L4"}
	c := Correlate(batchSeries("a", keys, 1, 2, 3, 4), batchSeries("b", keys, 8, 6, 4, 2))
	assert.InDelta(t, -1.0, c.Coefficient, 1e-9)
	assert.Equal(t, "strong_negative", c.Strength)
}

func TestCorrelateNoSharedKeys(t *testing.T) {
	x := batchSeries("a", []string{"L1", "L2", "L3"}, 1, 2, 3)
	y := batchSeries("b", []string{"M1", "M2", "M3"}, 1, 2, 3)
	c := Correlate(x, y)
	assert.Zero(t, c.Coefficient)
	assert.Empty(t, c.Points)
	assert.Equal(t, "weak", c.Strength)
}

func TestCorrelateFallsBackToMeasurementID(t *testing.T) {
	x := []model.Measurement{{ID: "s1", Value: 1}, {ID: "s2", Value: 2}, {ID: "s3", Value: 3}}
	y := []model.Measurement{{ID: "s1", Value: 3}, {ID: "s3", Value: 9}, {ID: "other", Value: 100}}
	c := Correlate(x, y)
	require.Len(t, c.Points, 2)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
}

func TestCorrelatePairsBySampleWithoutBatch(t *testing.T) {
	x := []model.Measurement{
		{ID: "brix-1", SampleID: "S1", Value: 1},
		{ID: "brix-2", SampleID: "S2", Value: 2},
		{ID: "brix-3", SampleID: "S3", Value: 3},
	}
	y := []model.Measurement{
		{ID: "density-1", SampleID: "S1", Value: 2},
		{ID: "density-2", SampleID: "S2", Value: 4},
		{ID: "density-3", SampleID: "S3", Value: 6},
	}
	c := Correlate(x, y)
	require.Len(t, c.Points, 3)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
	assert.Equal(t, "S2", c.Points[1].Name)

	assert.Equal(t, "L1", model.Measurement{ID: "m", SampleID: "S1", BatchID: "L1"}.MatchKey())
}

func TestCorrelateDegenerate(t *testing.T) {
	keys := []string{"L1", "L2", "L3"}
	single := Correlate(batchSeries("a", keys[:1], 1), batchSeries("b", keys[:1], 2))
	assert.Zero(t, single.Coefficient)
	assert.Len(t, single.Points, 1)

	constant := Correlate(batchSeries("a", keys, 5, 5, 5), batchSeries("b", keys, 1, 2, 3))
	assert.Zero(t, constant.Coefficient, "zero variance must not divide by zero")
}

func TestCorrelationStrength(t *testing.T) {
	assert.Equal(t, "moderate_positive", CorrelationStrength(0.5))
	assert.Equal(t, "weak", CorrelationStrength(0.3))
	assert.Equal(t, "weak", CorrelationStrength(-0.1))
	assert.Equal(t, "moderate_negative", CorrelationStrength(-0.5))
	assert.Equal(t, "strong_negative", CorrelationStrength(-0.7))
}
