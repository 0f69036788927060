package spc

import (
	"math"

	"spcguard/internal/model"
)

type CapabilityOptions struct {
	// LongTermPpk computes Ppk from the long-term sigma. When false Ppk
	// equals Cpk, matching the dashboards this service replaces.
	LongTermPpk bool
}

// Capability derives Cp, Cpu, Cpl, Cpk and Ppk from control limits and
// externally supplied spec limits. Every index is nil when either spec limit
// is missing or the sigma it needs is not positive.
func Capability(limits model.ControlLimits, spec model.SpecLimits, opts CapabilityOptions) model.ProcessCapability {
	out := CapabilityIndices(limits.Center, limits.SigmaShortTerm, spec)
	if out.Cpk == nil || !opts.LongTermPpk {
		return out
	}
	out.Ppk = nil
	if ppk, ok := cpkFor(limits.Center, limits.SigmaLongTerm, *spec.LSL, *spec.USL); ok {
		out.Ppk = &ppk
	}
	return out
}

func CapabilityIndices(center, sigma float64, spec model.SpecLimits) model.ProcessCapability {
	if spec.LSL == nil || spec.USL == nil || !(sigma > 0) {
		return model.ProcessCapability{}
	}
	usl, lsl := *spec.USL, *spec.LSL
	cp := (usl - lsl) / (6 * sigma)
	cpu := (usl - center) / (3 * sigma)
	cpl := (center - lsl) / (3 * sigma)
	cpk := math.Min(cpu, cpl)
	ppk := cpk
	return model.ProcessCapability{Cp: &cp, Cpu: &cpu, Cpl: &cpl, Cpk: &cpk, Ppk: &ppk}
}

func cpkFor(center, sigma, lsl, usl float64) (float64, bool) {
	if !(sigma > 0) {
		return 0, false
	}
	return math.Min((usl-center)/(3*sigma), (center-lsl)/(3*sigma)), true
}
