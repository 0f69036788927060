package spc

import (
	"math"

	"github.com/cockroachdb/apd/v3"

	"spcguard/internal/model"
)

const DisplayPlaces = 3

var roundContext = func() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}()

// Round rounds v half-up to places decimals. The value is converted through
// its shortest decimal representation so 2.0005 rounds to 2.001.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	var d apd.Decimal
	if _, err := d.SetFloat64(v); err != nil {
		return v
	}
	var out apd.Decimal
	if _, err := roundContext.Quantize(&out, &d, int32(-places)); err != nil {
		return v
	}
	f, err := out.Float64()
	if err != nil {
		return v
	}
	if f == 0 {
		return 0
	}
	return f
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v, places)
	return &r
}

// RoundLimits returns a display copy of l. Comparisons against limits must
// use the unrounded input.
func RoundLimits(l model.ControlLimits) model.ControlLimits {
	out := l
	out.Center = Round(l.Center, DisplayPlaces)
	out.SigmaShortTerm = Round(l.SigmaShortTerm, DisplayPlaces)
	out.SigmaLongTerm = Round(l.SigmaLongTerm, DisplayPlaces)
	out.UCL = Round(l.UCL, DisplayPlaces)
	out.LCL = Round(l.LCL, DisplayPlaces)
	out.AverageMovingRange = Round(l.AverageMovingRange, DisplayPlaces)
	if l.Secondary != nil {
		s := *l.Secondary
		s.AverageRange = Round(s.AverageRange, DisplayPlaces)
		s.AverageStdDev = Round(s.AverageStdDev, DisplayPlaces)
		s.RangeCenter = Round(s.RangeCenter, DisplayPlaces)
		s.RangeUCL = Round(s.RangeUCL, DisplayPlaces)
		s.RangeLCL = Round(s.RangeLCL, DisplayPlaces)
		s.StdDevCenter = Round(s.StdDevCenter, DisplayPlaces)
		s.StdDevUCL = Round(s.StdDevUCL, DisplayPlaces)
		s.StdDevLCL = Round(s.StdDevLCL, DisplayPlaces)
		out.Secondary = &s
	}
	if l.ChartValues != nil {
		out.ChartValues = make([]float64, len(l.ChartValues))
		for i, v := range l.ChartValues {
			out.ChartValues[i] = Round(v, DisplayPlaces)
		}
	}
	if len(l.Subgroups) > 0 {
		out.Subgroups = make([]model.Subgroup, len(l.Subgroups))
		for i, sg := range l.Subgroups {
			sg.Mean = Round(sg.Mean, DisplayPlaces)
			sg.Range = Round(sg.Range, DisplayPlaces)
			sg.StdDev = Round(sg.StdDev, DisplayPlaces)
			out.Subgroups[i] = sg
		}
	}
	return out
}

func RoundCapability(c model.ProcessCapability) model.ProcessCapability {
	return model.ProcessCapability{
		Cp:  roundPtr(c.Cp, DisplayPlaces),
		Cpu: roundPtr(c.Cpu, DisplayPlaces),
		Cpl: roundPtr(c.Cpl, DisplayPlaces),
		Cpk: roundPtr(c.Cpk, DisplayPlaces),
		Ppk: roundPtr(c.Ppk, DisplayPlaces),
	}
}
