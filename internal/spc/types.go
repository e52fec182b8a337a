package spc

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Measurement is a single reading inside a subgroup.
// Valid is false when the source cell was absent or non-numeric.
type Measurement struct {
	Value float64
	Valid bool
}

// Value returns a present measurement
func Value(v float64) Measurement {
	return Measurement{Value: v, Valid: true}
}

// Missing returns the explicit "absent" marker
func Missing() Measurement {
	return Measurement{}
}

// ParseMeasurement converts a raw cell into a Measurement.
// Empty or non-numeric cells become Missing, never zero. Grouping
// separators are not numeric: "1,234" is Missing.
func ParseMeasurement(cell string) Measurement {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Missing()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing()
	}
	return Value(v)
}

// ParseDecimalCommaMeasurement is ParseMeasurement for locales that write
// 12,5 for 12.5 (semicolon-delimited spreadsheet exports). A cell that also
// contains a dot is ambiguous and becomes Missing.
func ParseDecimalCommaMeasurement(cell string) Measurement {
	cell = strings.TrimSpace(cell)
	if strings.Count(cell, ",") == 1 {
		if strings.Contains(cell, ".") {
			return Missing()
		}
		cell = strings.Replace(cell, ",", ".", 1)
	}
	return ParseMeasurement(cell)
}

// MarshalJSON writes missing measurements as null
func (m Measurement) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Missing()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseMeasurement(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*m = Missing()
		return nil
	}
	*m = Value(v)
	return nil
}

// Subgroup is one sampling unit: a label and its ordered measurements
type Subgroup struct {
	Label        string        `json:"label"`
	Measurements []Measurement `json:"measurements"`
}

// ValidValues returns the non-missing measurements in order
func (s Subgroup) ValidValues() []float64 {
	values := make([]float64, 0, len(s.Measurements))
	for _, m := range s.Measurements {
		if m.Valid {
			values = append(values, m.Value)
		}
	}
	return values
}

// MeasurementTable is the core input: rows are subgroups, columns are
// repeated measurements. It is treated as read-only.
type MeasurementTable struct {
	Subgroups []Subgroup `json:"subgroups"`
}

// SubgroupSize returns n, the declared width of the table.
// The width of the first subgroup is authoritative.
func (t MeasurementTable) SubgroupSize() int {
	if len(t.Subgroups) == 0 {
		return 0
	}
	return len(t.Subgroups[0].Measurements)
}

// Observations counts the non-missing measurements across all subgroups
func (t MeasurementTable) Observations() int {
	count := 0
	for _, sg := range t.Subgroups {
		for _, m := range sg.Measurements {
			if m.Valid {
				count++
			}
		}
	}
	return count
}

// Cells counts every measurement cell, missing or not
func (t MeasurementTable) Cells() int {
	count := 0
	for _, sg := range t.Subgroups {
		count += len(sg.Measurements)
	}
	return count
}

// Values flattens all non-missing measurements in table order
func (t MeasurementTable) Values() []float64 {
	values := make([]float64, 0, t.Cells())
	for _, sg := range t.Subgroups {
		values = append(values, sg.ValidValues()...)
	}
	return values
}

// SubgroupStat is the per-subgroup reduction (X-bar, R)
type SubgroupStat struct {
	Label string  `json:"label"`
	Mean  float64 `json:"mean"`
	Range float64 `json:"range"`
	Count int     `json:"count"` // Non-missing measurements
	Valid bool    `json:"valid"` // False when Count == 0
}

// MarshalJSON writes undefined mean/range as null
func (s SubgroupStat) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"label": s.Label,
		"mean":  jsonFloat(s.Mean),
		"range": jsonFloat(s.Range),
		"count": s.Count,
		"valid": s.Valid,
	})
}

// ChartConstants holds the X-bar/R constants for a subgroup size
type ChartConstants struct {
	N  int     `json:"n"`
	A2 float64 `json:"a2"`
	D3 float64 `json:"d3"`
	D4 float64 `json:"d4"`
	D2 float64 `json:"d2"`
}

// ChartLimits is the centerline and control limits of one chart
type ChartLimits struct {
	Center float64 `json:"center"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// ControlLimits holds both charts plus the values they were derived from
type ControlLimits struct {
	N         int            `json:"n"`
	GrandMean float64        `json:"grand_mean"`
	MeanRange float64        `json:"mean_range"`
	XBar      ChartLimits    `json:"xbar"`
	R         ChartLimits    `json:"r"`
	Constants ChartConstants `json:"constants"`
}

// Basis returns the inputs the capability calculation needs
func (cl ControlLimits) Basis() CapabilityBasis {
	return CapabilityBasis{
		GrandMean: cl.GrandMean,
		MeanRange: cl.MeanRange,
		D2:        cl.Constants.D2,
	}
}

// SpecLimits are the user-supplied specification limits
type SpecLimits struct {
	LSL float64 `json:"lsl"`
	USL float64 `json:"usl"`
}

// CapabilityBasis is the subset of ControlLimits capability depends on
type CapabilityBasis struct {
	GrandMean float64 `json:"grand_mean"`
	MeanRange float64 `json:"mean_range"`
	D2        float64 `json:"d2"`
}

// CapabilityResult contains capability indices and out-of-spec probabilities.
// When Undefined is true every numeric field is NaN.
type CapabilityResult struct {
	SigmaEstimate float64 `json:"sigma_estimate"`
	Cp            float64 `json:"cp"`
	Cpu           float64 `json:"cpu"`
	Cpl           float64 `json:"cpl"`
	Cpk           float64 `json:"cpk"`
	ZUpper        float64 `json:"z_upper"`
	ZLower        float64 `json:"z_lower"`
	ProbAbove     float64 `json:"prob_above"`
	ProbBelow     float64 `json:"prob_below"`
	ProbTotal     float64 `json:"prob_total"`
	Undefined     bool    `json:"undefined"`
	Reason        string  `json:"reason,omitempty"`
}

// MarshalJSON writes NaN indices as null so consumers cannot read them as zero
func (c CapabilityResult) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"sigma_estimate": jsonFloat(c.SigmaEstimate),
		"cp":             jsonFloat(c.Cp),
		"cpu":            jsonFloat(c.Cpu),
		"cpl":            jsonFloat(c.Cpl),
		"cpk":            jsonFloat(c.Cpk),
		"z_upper":        jsonFloat(c.ZUpper),
		"z_lower":        jsonFloat(c.ZLower),
		"prob_above":     jsonFloat(c.ProbAbove),
		"prob_below":     jsonFloat(c.ProbBelow),
		"prob_total":     jsonFloat(c.ProbTotal),
		"undefined":      c.Undefined,
	}
	if c.Reason != "" {
		out["reason"] = c.Reason
	}
	return json.Marshal(out)
}

// DescriptiveStats are presentation-facing statistics over every
// individual measurement. They do not feed the control-limit math.
type DescriptiveStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`  // Sample, n-1 divisor
	Variance float64 `json:"variance"` // Sample, n-1 divisor
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
}

// MarshalJSON writes undefined statistics as null
func (d DescriptiveStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"count":    d.Count,
		"mean":     jsonFloat(d.Mean),
		"std_dev":  jsonFloat(d.StdDev),
		"variance": jsonFloat(d.Variance),
		"min":      jsonFloat(d.Min),
		"max":      jsonFloat(d.Max),
		"range":    jsonFloat(d.Range),
	})
}

// HistogramBin is a half-open interval [Lower, Upper) with its count.
// The last bin is closed on the right.
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram groups individual measurements into fixed-width bins
type Histogram struct {
	BinWidth float64        `json:"bin_width"`
	Bins     []HistogramBin `json:"bins"`
}

// BoxSummary is the five-number summary behind a box plot
type BoxSummary struct {
	Min        float64   `json:"min"`
	Q1         float64   `json:"q1"`
	Median     float64   `json:"median"`
	Q3         float64   `json:"q3"`
	Max        float64   `json:"max"`
	IQR        float64   `json:"iqr"`
	LowerFence float64   `json:"lower_fence"`
	UpperFence float64   `json:"upper_fence"`
	Outliers   []float64 `json:"outliers,omitempty"`
}

// Overview summarises the shape of the analysed table
type Overview struct {
	Subgroups    int `json:"subgroups"`
	SubgroupSize int `json:"subgroup_size"`
	Observations int `json:"observations"`
	Missing      int `json:"missing"`
}

// IssueKind classifies a non-fatal problem found during analysis
type IssueKind string

const (
	// IssueEmptySubgroup marks a subgroup without any valid measurement
	IssueEmptySubgroup IssueKind = "empty_subgroup"
	// IssueUndefinedCapability marks capability indices that could not be computed
	IssueUndefinedCapability IssueKind = "undefined_capability"
	// IssueInsufficientData marks descriptive statistics needing more observations
	IssueInsufficientData IssueKind = "insufficient_data"
)

// Issue is a non-fatal finding attached to a Result
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Subgroup string    `json:"subgroup,omitempty"`
	Message  string    `json:"message"`
}

// Result is the immutable bundle handed to the presentation layer
type Result struct {
	Overview    Overview          `json:"overview"`
	Subgroups   []SubgroupStat    `json:"subgroups"`
	Descriptive DescriptiveStats  `json:"descriptive"`
	Histogram   Histogram         `json:"histogram"`
	Box         BoxSummary        `json:"box"`
	Limits      ControlLimits     `json:"limits"`
	Spec        *SpecLimits       `json:"spec,omitempty"`
	Capability  *CapabilityResult `json:"capability,omitempty"`
	Issues      []Issue           `json:"issues,omitempty"`
}

// Partial reports whether part of the analysis is unavailable
func (r *Result) Partial() bool {
	return len(r.Issues) > 0
}

// Wire forms of infinite values, which encoding/json cannot write as numbers
const (
	PositiveInfinity = "+Inf"
	NegativeInfinity = "-Inf"
)

// jsonFloat maps NaN ("not computed") to null and infinities to
// PositiveInfinity/NegativeInfinity, e.g. Cp for unbounded spec limits
func jsonFloat(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return nil
	case math.IsInf(v, 1):
		return PositiveInfinity
	case math.IsInf(v, -1):
		return NegativeInfinity
	}
	return v
}
