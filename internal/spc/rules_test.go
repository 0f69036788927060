package spc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/model"
)

func byRule(violations []model.RunRuleViolation, rule int) []model.RunRuleViolation {
	var out []model.RunRuleViolation
	for _, v := range violations {
		if v.Rule == rule {
			out = append(out, v)
		}
	}
	return out
}

func repeatPattern(n int, pattern ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func TestBeyondLimits(t *testing.T) {
	values := []float64{0, 3, -3, 3.0001, -3.5, 1}
	got := byRule(DetectViolations(values, 0, 3, -3), RuleBeyondLimits)
	require.Len(t, got, 2, "points on the limits do not fire")
	assert.Equal(t, []int{3}, got[0].Points)
	assert.Equal(t, []int{4}, got[1].Points)
}

func TestRunOfNine(t *testing.T) {
	t.Run("nine above", func(t *testing.T) {
		got := byRule(DetectViolations(repeatPattern(9, 1, 2), 0, 10, -10), RuleRun)
		require.Len(t, got, 1)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, got[0].Points)
		assert.Equal(t, "above", got[0].Direction)
	})
	t.Run("eight is not a run", func(t *testing.T) {
		assert.Empty(t, byRule(DetectViolations(repeatPattern(8, 1, 2), 0, 10, -10), RuleRun))
	})
	t.Run("every window is reported", func(t *testing.T) {
		got := byRule(DetectViolations(repeatPattern(11, -1, -2), 0, 10, -10), RuleRun)
		require.Len(t, got, 3)
		assert.Equal(t, 2, got[2].Points[0])
		assert.Equal(t, "below", got[2].Direction)
	})
	t.Run("point on centerline breaks the run", func(t *testing.T) {
		values := repeatPattern(9, 1, 2)
		values[4] = 0
		assert.Empty(t, byRule(DetectViolations(values, 0, 10, -10), RuleRun))
	})
}

func TestTrendOfSix(t *testing.T) {
	got := byRule(DetectViolations([]float64{1, 2, 3, 4, 5, 6}, 3.5, 10, -10), RuleTrend)
	require.Len(t, got, 1)
	assert.Equal(t, "increasing", got[0].Direction)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, got[0].Points)

	got = byRule(DetectViolations([]float64{9, 8, 7, 6, 5, 4, 3}, 6, 20, -20), RuleTrend)
	require.Len(t, got, 2)
	assert.Equal(t, "decreasing", got[1].Direction)
	assert.Equal(t, 1, got[1].Points[0])

	assert.Empty(t, byRule(DetectViolations([]float64{1, 2, 3, 3, 4, 5}, 3, 10, -10), RuleTrend))
	assert.Empty(t, byRule(DetectViolations([]float64{1, 2, 3, 4, 5}, 3, 10, -10), RuleTrend))
}

func TestAlternationOfFourteen(t *testing.T) {
	got := byRule(DetectViolations(repeatPattern(14, 0, 1), 0.5, 10, -10), RuleAlternation)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Points, 14)

	assert.Empty(t, byRule(DetectViolations(repeatPattern(13, 0, 1), 0.5, 10, -10), RuleAlternation))
	assert.Len(t, byRule(DetectViolations(repeatPattern(15, 0, 1), 0.5, 10, -10), RuleAlternation), 2)

	flat := repeatPattern(14, 0, 1)
	flat[7] = flat[6]
	assert.Empty(t, byRule(DetectViolations(flat, 0.5, 10, -10), RuleAlternation))
}

func TestViolationsOverlap(t *testing.T) {
	// a steady climb above the center line trips rules 1, 2 and 3 together
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 30}
	got := DetectViolations(values, 0, 20, -20)
	assert.Len(t, byRule(got, RuleBeyondLimits), 1)
	assert.Len(t, byRule(got, RuleRun), 2)
	assert.Len(t, byRule(got, RuleTrend), 5)
	for _, v := range byRule(got, RuleTrend) {
		if v.Includes(9) {
			return
		}
	}
	t.Fatalf("expected a trend window ending on the newest point")
}

func TestTooFewPoints(t *testing.T) {
	assert.Empty(t, DetectViolations([]float64{100}, 0, 1, -1))
	assert.Empty(t, DetectViolations(nil, 0, 1, -1))
}

func TestZones(t *testing.T) {
	zones := Zones([]float64{10, 10.5, 11.5, 12.5, 13.5, 6}, 10, 13)
	assert.Equal(t, []model.Zone{model.ZoneC, model.ZoneC, model.ZoneB, model.ZoneA, model.ZoneBeyond, model.ZoneBeyond}, zones)
}
