// Package spc implements the statistical process control calculations:
// control limits for individuals and subgrouped charts, process capability,
// run-rule detection, correlation between parameters and histograms.
//
// Every function in this package is pure. Results carry full precision;
// RoundLimits and RoundCapability produce the published display values.
package spc

import (
	"math"

	"spcguard/internal/model"
)

type LimitsOptions struct {
	// SubgroupSize of 0 or 1 selects the individuals / moving-range chart.
	SubgroupSize int
	// NonNegative floors the primary LCL at zero for quantities that cannot
	// be negative.
	NonNegative bool
}

func (o LimitsOptions) size() int {
	if o.SubgroupSize == 0 {
		return 1
	}
	return o.SubgroupSize
}

// ComputeLimits derives control limits from a chronologically ordered series.
// Subgroups are labelled with the batch of their first measurement.
func ComputeLimits(series []model.Measurement, opts LimitsOptions) (model.ControlLimits, error) {
	values := make([]float64, len(series))
	labels := make([]string, len(series))
	for i, m := range series {
		values[i] = m.Value
		labels[i] = m.BatchID
	}
	return computeLimits(values, labels, opts)
}

func ComputeLimitsValues(values []float64, opts LimitsOptions) (model.ControlLimits, error) {
	return computeLimits(values, nil, opts)
}

func computeLimits(values []float64, labels []string, opts LimitsOptions) (model.ControlLimits, error) {
	n := opts.size()
	var factors Factors
	if n != 1 {
		f, err := FactorsFor(n)
		if err != nil {
			return model.ControlLimits{}, err
		}
		factors = f
	}
	out := model.ControlLimits{SubgroupSize: n, Points: len(values)}
	if len(values) < 2 {
		return out, nil
	}
	if n == 1 {
		individuals(&out, values)
	} else {
		groups := partition(values, labels, n)
		if len(groups) == 0 {
			return out, nil
		}
		subgrouped(&out, groups, factors)
	}
	out.SigmaLongTerm = sampleStdDev(values)
	out.Sufficient = true
	if opts.NonNegative && out.LCL < 0 {
		out.LCL = 0
		out.LCLClipped = true
	}
	return out, nil
}

func individuals(out *model.ControlLimits, values []float64) {
	ranges := MovingRanges(values)
	avgMR := mean(ranges)
	sigma := avgMR / MovingRangeD2
	center := mean(values)
	out.Center = center
	out.AverageMovingRange = avgMR
	out.SigmaShortTerm = sigma
	out.UCL = center + 3*sigma
	out.LCL = center - 3*sigma
	out.ChartValues = append([]float64(nil), values...)
}

func subgrouped(out *model.ControlLimits, groups []model.Subgroup, f Factors) {
	means := make([]float64, len(groups))
	var sumRange, sumStd float64
	for i, g := range groups {
		means[i] = g.Mean
		sumRange += g.Range
		sumStd += g.StdDev
	}
	k := float64(len(groups))
	rBar := sumRange / k
	sBar := sumStd / k
	center := mean(means)
	out.Center = center
	out.SigmaShortTerm = rBar / f.D2
	out.UCL = center + f.A2*rBar
	out.LCL = center - f.A2*rBar
	out.Secondary = &model.SecondaryLimits{
		AverageRange:  rBar,
		AverageStdDev: sBar,
		RangeCenter:   rBar,
		RangeUCL:      f.D4 * rBar,
		RangeLCL:      f.D3 * rBar,
		StdDevCenter:  sBar,
		StdDevUCL:     f.B4 * sBar,
		StdDevLCL:     f.B3 * sBar,
	}
	out.ChartValues = means
	out.Subgroups = groups
}

// Subgroups partitions values into consecutive groups of n. A trailing
// partial group is dropped.
func Subgroups(series []model.Measurement, n int) ([]model.Subgroup, error) {
	if _, err := FactorsFor(n); err != nil {
		return nil, err
	}
	values := make([]float64, len(series))
	labels := make([]string, len(series))
	for i, m := range series {
		values[i] = m.Value
		labels[i] = m.BatchID
	}
	return partition(values, labels, n), nil
}

func partition(values []float64, labels []string, n int) []model.Subgroup {
	count := len(values) / n
	out := make([]model.Subgroup, 0, count)
	for g := 0; g < count; g++ {
		start := g * n
		chunk := append([]float64(nil), values[start:start+n]...)
		lo, hi := chunk[0], chunk[0]
		for _, v := range chunk[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		sg := model.Subgroup{
			Start:  start,
			Values: chunk,
			Mean:   mean(chunk),
			Range:  hi - lo,
			StdDev: sampleStdDev(chunk),
		}
		if labels != nil {
			sg.Label = labels[start]
		}
		out = append(out, sg)
	}
	return out
}

func MovingRanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = math.Abs(values[i] - values[i-1])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
