package spc

import (
	"math"
)

// ComputeCapability estimates process sigma from R-bar/d2 and derives the
// capability indices and out-of-spec probabilities for the given limits.
//
// Degenerate data (sigma <= 0, or d2 <= 0 if the table is ever extended)
// never raises: every field is NaN and Undefined is set.
func ComputeCapability(basis CapabilityBasis, spec SpecLimits) CapabilityResult {
	if basis.D2 <= 0 || math.IsNaN(basis.D2) {
		return undefinedCapability("d2 constant is not positive")
	}

	sigma := basis.MeanRange / basis.D2
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return undefinedCapability("estimated sigma is zero: subgroups show no variation")
	}

	zUpper := (spec.USL - basis.GrandMean) / sigma
	zLower := (basis.GrandMean - spec.LSL) / sigma
	cpu := zUpper / 3
	cpl := zLower / 3

	probAbove := upperTail(zUpper)
	probBelow := upperTail(zLower)

	return CapabilityResult{
		SigmaEstimate: sigma,
		Cp:            (spec.USL - spec.LSL) / (6 * sigma),
		Cpu:           cpu,
		Cpl:           cpl,
		Cpk:           math.Min(cpu, cpl),
		ZUpper:        zUpper,
		ZLower:        zLower,
		ProbAbove:     probAbove,
		ProbBelow:     probBelow,
		ProbTotal:     probAbove + probBelow,
	}
}

// NormalCDF is the standard normal cumulative distribution function
func NormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// upperTail returns 1 - Φ(z) without cancellation for large z
func upperTail(z float64) float64 {
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

func undefinedCapability(reason string) CapabilityResult {
	nan := math.NaN()
	return CapabilityResult{
		SigmaEstimate: nan,
		Cp:            nan,
		Cpu:           nan,
		Cpl:           nan,
		Cpk:           nan,
		ZUpper:        nan,
		ZLower:        nan,
		ProbAbove:     nan,
		ProbBelow:     nan,
		ProbTotal:     nan,
		Undefined:     true,
		Reason:        reason,
	}
}
