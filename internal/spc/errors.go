package spc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSubgroupSize is fatal: no control limits can be produced
	ErrInvalidSubgroupSize = errors.New("invalid subgroup size")

	// ErrUndefinedCapability is non-fatal: affected fields are NaN
	ErrUndefinedCapability = errors.New("undefined capability")

	// ErrEmptyTable is returned when the table has no subgroups
	ErrEmptyTable = errors.New("measurement table has no subgroups")

	// ErrNoMeasurements is returned when no subgroup has a valid measurement
	ErrNoMeasurements = errors.New("measurement table has no valid measurements")

	// ErrInvalidSpecLimits is returned for non-finite or inverted limits
	ErrInvalidSpecLimits = errors.New("invalid specification limits")
)

// InvalidSubgroupSizeError reports an unsupported or inconsistent subgroup width
type InvalidSubgroupSizeError struct {
	Size     int    `json:"size"`               // Declared subgroup size n
	Subgroup string `json:"subgroup,omitempty"` // Offending subgroup, if width mismatch
	Width    int    `json:"width,omitempty"`    // Offending subgroup width
}

// Error implements the error interface
func (e *InvalidSubgroupSizeError) Error() string {
	if e.Subgroup != "" {
		return fmt.Sprintf("invalid subgroup size: subgroup %q has %d measurements, expected %d",
			e.Subgroup, e.Width, e.Size)
	}
	return fmt.Sprintf("invalid subgroup size: n=%d, supported range is %d-%d",
		e.Size, MinSubgroupSize, MaxSubgroupSize)
}

// Is matches ErrInvalidSubgroupSize
func (e *InvalidSubgroupSizeError) Is(target error) bool {
	return target == ErrInvalidSubgroupSize
}

// EmptySubgroupError reports a subgroup with zero valid measurements.
// It is classified as an undefined-capability data error.
type EmptySubgroupError struct {
	Index int
	Label string
}

// Error implements the error interface
func (e *EmptySubgroupError) Error() string {
	return fmt.Sprintf("subgroup %q (row %d) has no valid measurements", e.Label, e.Index+1)
}

// Is matches ErrUndefinedCapability
func (e *EmptySubgroupError) Is(target error) bool {
	return target == ErrUndefinedCapability
}

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	return ve.Message
}

// Unwrap ties spec-limit validation failures to ErrInvalidSpecLimits
func (ve *ValidationError) Unwrap() error {
	switch ve.Field {
	case "lsl", "usl", "spec":
		return ErrInvalidSpecLimits
	}
	return nil
}
