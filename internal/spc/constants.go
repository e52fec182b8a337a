package spc

const (
	// MinSubgroupSize is the smallest n with tabulated constants
	MinSubgroupSize = 2
	// MaxSubgroupSize is the largest n with tabulated constants
	MaxSubgroupSize = 10
)

// chartConstants is the X-bar/R constant table indexed by n
var chartConstants = map[int]ChartConstants{
	2:  {N: 2, A2: 1.880, D3: 0.000, D4: 3.267, D2: 1.128},
	3:  {N: 3, A2: 1.023, D3: 0.000, D4: 2.574, D2: 1.693},
	4:  {N: 4, A2: 0.729, D3: 0.000, D4: 2.282, D2: 2.059},
	5:  {N: 5, A2: 0.577, D3: 0.000, D4: 2.115, D2: 2.326},
	6:  {N: 6, A2: 0.483, D3: 0.000, D4: 2.004, D2: 2.534},
	7:  {N: 7, A2: 0.419, D3: 0.076, D4: 1.924, D2: 2.704},
	8:  {N: 8, A2: 0.373, D3: 0.136, D4: 1.864, D2: 2.847},
	9:  {N: 9, A2: 0.337, D3: 0.184, D4: 1.816, D2: 2.970},
	10: {N: 10, A2: 0.308, D3: 0.223, D4: 1.777, D2: 3.078},
}

// LookupConstants returns (A2, D3, D4, d2) for subgroup size n.
// Sizes outside [2,10] fail with ErrInvalidSubgroupSize.
func LookupConstants(n int) (ChartConstants, error) {
	c, ok := chartConstants[n]
	if !ok {
		return ChartConstants{}, &InvalidSubgroupSizeError{Size: n}
	}
	return c, nil
}

// SupportedConstants returns the whole table ordered by n
func SupportedConstants() []ChartConstants {
	table := make([]ChartConstants, 0, len(chartConstants))
	for n := MinSubgroupSize; n <= MaxSubgroupSize; n++ {
		table = append(table, chartConstants[n])
	}
	return table
}
