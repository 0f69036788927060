package spc

import (
	"fmt"

	"spcguard/internal/model"
)

const (
	RuleBeyondLimits = 1
	RuleRun          = 2
	RuleTrend        = 3
	RuleAlternation  = 4

	runLength         = 9
	trendLength       = 6
	alternationLength = 14
)

// DetectViolations scans the chart values for the four run rules. Each rule
// scans the whole series independently and every qualifying window is
// reported, so violations may overlap.
func DetectViolations(values []float64, center, ucl, lcl float64) []model.RunRuleViolation {
	if len(values) < 2 {
		return nil
	}
	var out []model.RunRuleViolation
	out = append(out, beyondLimits(values, ucl, lcl)...)
	out = append(out, runs(values, center)...)
	out = append(out, trends(values)...)
	out = append(out, alternations(values)...)
	return out
}

func beyondLimits(values []float64, ucl, lcl float64) []model.RunRuleViolation {
	var out []model.RunRuleViolation
	for i, v := range values {
		if v > ucl || v < lcl {
			out = append(out, model.RunRuleViolation{
				Rule:        RuleBeyondLimits,
				Description: "Point beyond 3σ control limit",
				Points:      []int{i},
			})
		}
	}
	return out
}

func runs(values []float64, center float64) []model.RunRuleViolation {
	var out []model.RunRuleViolation
	for start := 0; start+runLength <= len(values); start++ {
		above, below := true, true
		for _, v := range values[start : start+runLength] {
			if !(v > center) {
				above = false
			}
			if !(v < center) {
				below = false
			}
		}
		if above || below {
			side := "above"
			if below {
				side = "below"
			}
			out = append(out, model.RunRuleViolation{
				Rule:        RuleRun,
				Description: fmt.Sprintf("%d consecutive points %s centerline", runLength, side),
				Points:      window(start, runLength),
				Direction:   side,
			})
		}
	}
	return out
}

func trends(values []float64) []model.RunRuleViolation {
	var out []model.RunRuleViolation
	for start := 0; start+trendLength <= len(values); start++ {
		increasing, decreasing := true, true
		for j := start + 1; j < start+trendLength; j++ {
			if values[j] <= values[j-1] {
				increasing = false
			}
			if values[j] >= values[j-1] {
				decreasing = false
			}
		}
		if increasing || decreasing {
			direction := "increasing"
			if decreasing {
				direction = "decreasing"
			}
			out = append(out, model.RunRuleViolation{
				Rule:        RuleTrend,
				Description: fmt.Sprintf("%d consecutive points steadily %s", trendLength, direction),
				Points:      window(start, trendLength),
				Direction:   direction,
			})
		}
	}
	return out
}

func alternations(values []float64) []model.RunRuleViolation {
	var out []model.RunRuleViolation
	for start := 0; start+alternationLength <= len(values); start++ {
		ok := true
		prev := 0.0
		for j := start + 1; j < start+alternationLength; j++ {
			d := values[j] - values[j-1]
			if d == 0 || (j > start+1 && (d > 0) == (prev > 0)) {
				ok = false
				break
			}
			prev = d
		}
		if ok {
			out = append(out, model.RunRuleViolation{
				Rule:        RuleAlternation,
				Description: fmt.Sprintf("%d consecutive points alternating up and down", alternationLength),
				Points:      window(start, alternationLength),
			})
		}
	}
	return out
}

func window(start, length int) []int {
	out := make([]int, length)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// Zones classifies each value by its distance from the center line, using
// (UCL - center)/3 as one sigma.
func Zones(values []float64, center, ucl float64) []model.Zone {
	sigma := (ucl - center) / 3
	out := make([]model.Zone, len(values))
	for i, v := range values {
		out[i] = zoneOf(v, center, sigma)
	}
	return out
}

func zoneOf(v, center, sigma float64) model.Zone {
	if !(sigma > 0) {
		if v == center {
			return model.ZoneC
		}
		return model.ZoneBeyond
	}
	d := v - center
	if d < 0 {
		d = -d
	}
	switch {
	case d > 3*sigma:
		return model.ZoneBeyond
	case d > 2*sigma:
		return model.ZoneA
	case d > sigma:
		return model.ZoneB
	}
	return model.ZoneC
}
