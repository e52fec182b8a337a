// Package spc implements the Statistical Process Control engine: X-bar/R
// control limits and process-capability indices for subgrouped measurements.
//
// # Pipeline
//
// Data flows strictly forward and every step is a pure function:
//
//  1. Aggregate reduces each subgroup to its mean (X-bar) and range (R)
//  2. LookupConstants maps the subgroup size n to (A2, D3, D4, d2)
//  3. ComputeControlLimits derives the grand mean, mean range and both charts
//  4. ComputeCapability estimates sigma as R-bar/d2 and derives Cp, Cpu, Cpl,
//     Cpk and the out-of-spec probabilities for a pair of spec limits
//
// Analyzer wires these together and also produces the presentation-facing
// statistics (pooled descriptive statistics, histogram, box-plot summary).
//
// # Usage Example
//
//	analyzer := spc.NewAnalyzer(slog.Default())
//	result, err := analyzer.Analyze(ctx, table, &spc.SpecLimits{LSL: 495, USL: 505})
//	if err != nil {
//	    // errors.Is(err, spc.ErrInvalidSubgroupSize): nothing can be shown
//	    return err
//	}
//	if result.Partial() {
//	    // some fields are NaN, see result.Issues
//	}
//
//	// New spec limits reuse the control limits as-is
//	updated, err := result.WithSpecLimits(spc.SpecLimits{LSL: 490, USL: 510})
//
// # Error Model
//
// Two classes of error exist. ErrInvalidSubgroupSize (and the other input
// errors such as ErrEmptyTable) are fatal and no Result is produced.
// ErrUndefinedCapability is non-fatal: empty subgroups and zero-variation data
// yield NaN fields, flagged through Result.Issues and CapabilityResult.Undefined,
// while every independently computable value is still returned.
//
// Subgroup sizes are restricted to 2..10, the range of the constant table.
package spc
