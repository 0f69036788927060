package spc

import (
	"math"

	"spcguard/internal/model"
)

const DefaultHistogramBins = 15

// BuildHistogram bins values over [min - σ/2, max + σ/2] and overlays a
// normal curve scaled to the bar counts. σ is the population deviation.
// A series without spread produces a single bin and no curve.
func BuildHistogram(values []float64, bins int) model.Histogram {
	if len(values) == 0 {
		return model.Histogram{}
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	mu := mean(values)
	sd := populationStdDev(values)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	h := model.Histogram{Mean: mu, StdDev: sd, Min: lo, Max: hi}
	if !(sd > 0) {
		h.Bins = []model.HistogramBin{{Lower: lo, Upper: hi, Mid: lo, Count: len(values)}}
		return h
	}
	var skew float64
	for _, v := range values {
		z := (v - mu) / sd
		skew += z * z * z
	}
	h.Skewness = skew / float64(len(values))

	start := lo - sd*0.5
	width := (hi + sd*0.5 - start) / float64(bins)
	counts := make([]int, bins)
	for _, v := range values {
		idx := int(math.Floor((v - start) / width))
		if idx >= bins {
			idx = bins - 1
		}
		if idx >= 0 {
			counts[idx]++
		}
	}
	n := float64(len(values))
	h.Bins = make([]model.HistogramBin, bins)
	for i, c := range counts {
		lower := start + float64(i)*width
		mid := lower + width/2
		pdf := math.Exp(-0.5*math.Pow((mid-mu)/sd, 2)) / (sd * math.Sqrt(2*math.Pi))
		h.Bins[i] = model.HistogramBin{
			Lower: lower,
			Upper: lower + width,
			Mid:   mid,
			Count: c,
			Curve: pdf * n * width,
		}
	}
	return h
}
