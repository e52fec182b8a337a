package spc

import (
	"math"
	"strconv"
)

// ValidateTable checks the table shape before any computation.
// It enforces a non-empty table, a supported subgroup size and a
// uniform width across subgroups.
func ValidateTable(table MeasurementTable) error {
	if len(table.Subgroups) == 0 {
		return ErrEmptyTable
	}

	n := table.SubgroupSize()
	if n < MinSubgroupSize || n > MaxSubgroupSize {
		return &InvalidSubgroupSizeError{Size: n}
	}

	for i, sg := range table.Subgroups {
		if len(sg.Measurements) != n {
			label := sg.Label
			if label == "" {
				label = rowLabel(i)
			}
			return &InvalidSubgroupSizeError{Size: n, Subgroup: label, Width: len(sg.Measurements)}
		}
	}
	return nil
}

// ValidateSpecLimits requires finite limits with LSL < USL
func ValidateSpecLimits(spec SpecLimits) error {
	if math.IsNaN(spec.LSL) || math.IsInf(spec.LSL, 0) {
		return &ValidationError{
			Field:   "lsl",
			Message: "lower specification limit must be a finite number",
		}
	}
	if math.IsNaN(spec.USL) || math.IsInf(spec.USL, 0) {
		return &ValidationError{
			Field:   "usl",
			Message: "upper specification limit must be a finite number",
		}
	}
	if spec.LSL >= spec.USL {
		return &ValidationError{
			Field:   "spec",
			Message: "lower specification limit must be below the upper limit",
			Value:   map[string]float64{"lsl": spec.LSL, "usl": spec.USL},
		}
	}
	return nil
}

func rowLabel(i int) string {
	return "#" + strconv.Itoa(i+1)
}
