package spc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultHistogramBinWidth matches the unit-width bins of the weighing reports
const DefaultHistogramBinWidth = 1.0

// Analyzer orchestrates the SPC pipeline: aggregate, look up constants,
// compute control limits and, when spec limits are given, capability.
// It holds no per-analysis state and is safe for concurrent use.
type Analyzer struct {
	logger   *slog.Logger
	binWidth float64
}

// NewAnalyzer creates an analyzer that logs through logger
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:   logger,
		binWidth: DefaultHistogramBinWidth,
	}
}

// SetHistogramBinWidth overrides the histogram bin width
func (a *Analyzer) SetHistogramBinWidth(width float64) error {
	if !(width > 0) {
		return &ValidationError{
			Field:   "bin_width",
			Message: "histogram bin width must be positive",
			Value:   width,
		}
	}
	a.binWidth = width
	return nil
}

// Analyze runs the whole pipeline over table.
//
// Fatal input errors (unsupported subgroup size, inconsistent widths, empty
// table, no valid data, invalid spec limits) return a nil Result. Non-fatal
// problems (empty subgroups, zero variation) are recorded in Result.Issues
// and the affected fields are NaN.
func (a *Analyzer) Analyze(ctx context.Context, table MeasurementTable, spec *SpecLimits) (*Result, error) {
	start := time.Now()

	a.logger.DebugContext(ctx, "starting spc analysis",
		"subgroups", len(table.Subgroups),
		"subgroup_size", table.SubgroupSize(),
	)

	if err := ValidateTable(table); err != nil {
		a.logger.WarnContext(ctx, "table validation failed", "error", err)
		return nil, fmt.Errorf("validate table: %w", err)
	}
	if spec != nil {
		if err := ValidateSpecLimits(*spec); err != nil {
			return nil, fmt.Errorf("validate spec limits: %w", err)
		}
	}

	constants, err := LookupConstants(table.SubgroupSize())
	if err != nil {
		return nil, fmt.Errorf("lookup constants: %w", err)
	}

	result := &Result{}

	stats, aggErr := Aggregate(table)
	if aggErr != nil {
		var empty *EmptySubgroupError
		for _, e := range unjoin(aggErr) {
			if errors.As(e, &empty) {
				result.Issues = append(result.Issues, Issue{
					Kind:     IssueEmptySubgroup,
					Subgroup: empty.Label,
					Message:  empty.Error(),
				})
			}
		}
		a.logger.WarnContext(ctx, "subgroups without valid measurements",
			"count", len(result.Issues),
		)
	}

	limits, err := ComputeControlLimits(stats, constants)
	if err != nil {
		return nil, fmt.Errorf("compute control limits: %w", err)
	}

	values := table.Values()
	result.Overview = Overview{
		Subgroups:    len(table.Subgroups),
		SubgroupSize: constants.N,
		Observations: len(values),
		Missing:      table.Cells() - len(values),
	}
	result.Subgroups = stats
	result.Descriptive = describeValues(values)
	result.Histogram = BuildHistogram(values, a.binWidth)
	result.Box = Summarize(values)
	result.Limits = limits

	if len(values) < 2 {
		result.Issues = append(result.Issues, Issue{
			Kind:    IssueInsufficientData,
			Message: "sample standard deviation needs at least two observations",
		})
	}

	if spec != nil {
		result.applySpec(*spec)
	}

	a.logger.InfoContext(ctx, "spc analysis completed",
		"subgroups", result.Overview.Subgroups,
		"n", constants.N,
		"grand_mean", limits.GrandMean,
		"mean_range", limits.MeanRange,
		"partial", result.Partial(),
		"duration", time.Since(start),
	)
	return result, nil
}

// WithSpecLimits returns a copy of r with capability recomputed for spec.
// Control limits and subgroup statistics are shared, never recomputed.
func (r *Result) WithSpecLimits(spec SpecLimits) (*Result, error) {
	if err := ValidateSpecLimits(spec); err != nil {
		return nil, fmt.Errorf("validate spec limits: %w", err)
	}

	out := *r
	out.Issues = nil
	for _, issue := range r.Issues {
		if issue.Kind != IssueUndefinedCapability {
			out.Issues = append(out.Issues, issue)
		}
	}
	out.applySpec(spec)
	return &out, nil
}

func (r *Result) applySpec(spec SpecLimits) {
	capability := ComputeCapability(r.Limits.Basis(), spec)
	r.Spec = &spec
	r.Capability = &capability
	if capability.Undefined {
		r.Issues = append(r.Issues, Issue{
			Kind:    IssueUndefinedCapability,
			Message: capability.Reason,
		})
	}
}

// unjoin flattens an errors.Join result
func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
