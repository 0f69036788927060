package spc

import (
	"math"

	"spcguard/internal/model"
)

// Correlate pairs the measurements of two parameters by MatchKey and
// computes Pearson's r over the pairs.
// Fewer than two pairs yield a coefficient of 0.
func Correlate(a, b []model.Measurement) model.Correlation {
	lookup := make(map[string]float64, len(a))
	for _, m := range a {
		lookup[m.MatchKey()] = m.Value
	}
	points := make([]model.CorrelationPoint, 0)
	for _, m := range b {
		x, ok := lookup[m.MatchKey()]
		if !ok {
			continue
		}
		points = append(points, model.CorrelationPoint{X: x, Y: m.Value, Name: m.MatchKey()})
	}
	r := Pearson(points)
	return model.Correlation{Coefficient: r, Strength: CorrelationStrength(r), Points: points}
}

func Pearson(points []model.CorrelationPoint) float64 {
	n := float64(len(points))
	if len(points) < 2 {
		return 0
	}
	var sx, sy, sxy, sxx, syy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
		sxy += p.X * p.Y
		sxx += p.X * p.X
		syy += p.Y * p.Y
	}
	den := (n*sxx - sx*sx) * (n*syy - sy*sy)
	if !(den > 0) {
		return 0
	}
	return (n*sxy - sx*sy) / math.Sqrt(den)
}

func CorrelationStrength(r float64) string {
	switch {
	case r > 0.7:
		return "strong_positive"
	case r > 0.3:
		return "moderate_positive"
	case r > -0.3:
		return "weak"
	case r > -0.7:
		return "moderate_negative"
	}
	return "strong_negative"
}
