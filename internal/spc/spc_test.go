package spc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(vs ...float64) []Measurement {
	out := make([]Measurement, len(vs))
	for i, v := range vs {
		out[i] = Value(v)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// twoSubgroupTable has means [11, 9] and ranges [4, 2] with n=5
func twoSubgroupTable() MeasurementTable {
	return MeasurementTable{Subgroups: []Subgroup{
		{Label: "1", Measurements: values(10, 12, 11, 9, 13)},
		{Label: "2", Measurements: values(9, 8, 10, 9, 9)},
	}}
}

// TestLookupConstants tests the constant table boundaries and literals
func TestLookupConstants(t *testing.T) {
	expected := map[int][4]float64{
		2:  {1.880, 0.000, 3.267, 1.128},
		3:  {1.023, 0.000, 2.574, 1.693},
		4:  {0.729, 0.000, 2.282, 2.059},
		5:  {0.577, 0.000, 2.115, 2.326},
		6:  {0.483, 0.000, 2.004, 2.534},
		7:  {0.419, 0.076, 1.924, 2.704},
		8:  {0.373, 0.136, 1.864, 2.847},
		9:  {0.337, 0.184, 1.816, 2.970},
		10: {0.308, 0.223, 1.777, 3.078},
	}

	for n, want := range expected {
		c, err := LookupConstants(n)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, c.N)
		assert.Equal(t, want[0], c.A2, "A2 n=%d", n)
		assert.Equal(t, want[1], c.D3, "D3 n=%d", n)
		assert.Equal(t, want[2], c.D4, "D4 n=%d", n)
		assert.Equal(t, want[3], c.D2, "d2 n=%d", n)
	}

	for _, n := range []int{-1, 0, 1, 11, 25} {
		_, err := LookupConstants(n)
		require.Error(t, err, "n=%d", n)
		assert.True(t, errors.Is(err, ErrInvalidSubgroupSize))

		var sizeErr *InvalidSubgroupSizeError
		require.True(t, errors.As(err, &sizeErr))
		assert.Equal(t, n, sizeErr.Size)
	}

	assert.Len(t, SupportedConstants(), 9)
	assert.Equal(t, 2, SupportedConstants()[0].N)
	assert.Equal(t, 10, SupportedConstants()[8].N)
}

// TestAggregate tests subgroup mean and range
func TestAggregate(t *testing.T) {
	t.Run("single subgroup", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "A", Measurements: values(10, 12, 11, 9, 13)},
		}}
		stats, err := Aggregate(table)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 11.0, stats[0].Mean)
		assert.Equal(t, 4.0, stats[0].Range)
		assert.Equal(t, 5, stats[0].Count)
		assert.True(t, stats[0].Valid)
	})

	t.Run("missing values are excluded", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "A", Measurements: []Measurement{Value(10), Missing(), Value(14), Missing()}},
		}}
		stats, err := Aggregate(table)
		require.NoError(t, err)
		assert.Equal(t, 12.0, stats[0].Mean)
		assert.Equal(t, 4.0, stats[0].Range)
		assert.Equal(t, 2, stats[0].Count)
	})

	t.Run("empty subgroup is a data error", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "A", Measurements: values(1, 2)},
			{Label: "B", Measurements: []Measurement{Missing(), Missing()}},
		}}
		stats, err := Aggregate(table)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUndefinedCapability))

		var empty *EmptySubgroupError
		require.True(t, errors.As(err, &empty))
		assert.Equal(t, "B", empty.Label)
		assert.Equal(t, 1, empty.Index)

		assert.True(t, stats[0].Valid)
		assert.False(t, stats[1].Valid)
		assert.True(t, math.IsNaN(stats[1].Mean))
		assert.True(t, math.IsNaN(stats[1].Range))
	})
}

// TestDescribe tests pooled descriptive statistics
func TestDescribe(t *testing.T) {
	table := MeasurementTable{Subgroups: []Subgroup{
		{Label: "1", Measurements: []Measurement{Value(2), Value(4), Missing()}},
		{Label: "2", Measurements: values(4, 4, 5)},
		{Label: "3", Measurements: values(5, 7, 9)},
	}}

	d := Describe(table)
	assert.Equal(t, 8, d.Count)
	assert.Equal(t, 5.0, d.Mean)
	assert.InDelta(t, 32.0/7.0, d.Variance, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), d.StdDev, 1e-12)
	assert.Equal(t, 2.0, d.Min)
	assert.Equal(t, 9.0, d.Max)
	assert.Equal(t, 7.0, d.Range)

	t.Run("single observation", func(t *testing.T) {
		d := describeValues([]float64{3})
		assert.Equal(t, 3.0, d.Mean)
		assert.True(t, math.IsNaN(d.StdDev))
		assert.True(t, math.IsNaN(d.Variance))
		assert.Equal(t, 0.0, d.Range)
	})

	t.Run("no observations", func(t *testing.T) {
		d := describeValues(nil)
		assert.Equal(t, 0, d.Count)
		assert.True(t, math.IsNaN(d.Mean))
		assert.True(t, math.IsNaN(d.Min))
	})
}

// TestComputeControlLimits covers the worked two-subgroup example
func TestComputeControlLimits(t *testing.T) {
	stats := []SubgroupStat{
		{Label: "1", Mean: 11.0, Range: 4.0, Count: 5, Valid: true},
		{Label: "2", Mean: 9.0, Range: 2.0, Count: 5, Valid: true},
	}
	constants, err := LookupConstants(5)
	require.NoError(t, err)

	limits, err := ComputeControlLimits(stats, constants)
	require.NoError(t, err)

	assert.Equal(t, 10.0, limits.GrandMean)
	assert.Equal(t, 3.0, limits.MeanRange)
	assert.Equal(t, limits.GrandMean, limits.XBar.Center)
	assert.Equal(t, limits.MeanRange, limits.R.Center)
	assert.InDelta(t, 11.731, limits.XBar.Upper, 1e-9)
	assert.InDelta(t, 8.269, limits.XBar.Lower, 1e-9)
	assert.InDelta(t, 2.115*3.0, limits.R.Upper, 1e-9)
	assert.Equal(t, 0.0, limits.R.Lower)

	t.Run("invalid subgroups are skipped", func(t *testing.T) {
		withEmpty := append([]SubgroupStat{{Label: "x", Mean: math.NaN(), Range: math.NaN()}}, stats...)
		got, err := ComputeControlLimits(withEmpty, constants)
		require.NoError(t, err)
		assert.Equal(t, limits, got)
	})

	t.Run("no valid subgroup", func(t *testing.T) {
		_, err := ComputeControlLimits([]SubgroupStat{{Label: "x"}}, constants)
		assert.ErrorIs(t, err, ErrNoMeasurements)
	})

	t.Run("unsupported constants", func(t *testing.T) {
		_, err := ComputeControlLimits(stats, ChartConstants{N: 11})
		assert.ErrorIs(t, err, ErrInvalidSubgroupSize)
	})

	t.Run("R chart lower limit is non-negative for every n", func(t *testing.T) {
		for _, c := range SupportedConstants() {
			got, err := ComputeControlLimits(stats, c)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.MeanRange, 0.0)
			assert.GreaterOrEqual(t, got.R.Lower, 0.0, "n=%d", c.N)
			if c.D3 > 0 {
				assert.Greater(t, got.R.Lower, 0.0, "n=%d", c.N)
			}
		}
	})
}

// TestComputeCapability covers the symmetric worked example
func TestComputeCapability(t *testing.T) {
	basis := CapabilityBasis{GrandMean: 10.0, MeanRange: 3.0, D2: 2.326}
	got := ComputeCapability(basis, SpecLimits{LSL: 5, USL: 15})

	require.False(t, got.Undefined)
	assert.InDelta(t, 1.289, got.SigmaEstimate, 1e-3)
	assert.InDelta(t, 1.2922, got.Cp, 1e-3)
	assert.InDelta(t, 1.2922, got.Cpu, 1e-3)
	assert.InDelta(t, 1.2922, got.Cpl, 1e-3)
	assert.InDelta(t, got.Cpu, got.Cpl, 1e-12)
	assert.Equal(t, math.Min(got.Cpu, got.Cpl), got.Cpk)
	assert.InDelta(t, got.ZUpper, got.ZLower, 1e-12)
	assert.InDelta(t, 1-NormalCDF(got.ZUpper), got.ProbAbove, 1e-12)
	assert.InDelta(t, got.ProbAbove+got.ProbBelow, got.ProbTotal, 1e-15)

	t.Run("off-center process", func(t *testing.T) {
		got := ComputeCapability(basis, SpecLimits{LSL: 8, USL: 15})
		assert.Less(t, got.Cpl, got.Cpu)
		assert.Equal(t, got.Cpl, got.Cpk)
		assert.Greater(t, got.ProbBelow, got.ProbAbove)
	})

	t.Run("wide limits push indices up and defects down", func(t *testing.T) {
		prev := ComputeCapability(basis, SpecLimits{LSL: 0, USL: 20})
		for _, width := range []float64{1e2, 1e4, 1e8} {
			cur := ComputeCapability(basis, SpecLimits{LSL: 10 - width, USL: 10 + width})
			assert.Greater(t, cur.Cp, prev.Cp)
			assert.Greater(t, cur.Cpk, prev.Cpk)
			assert.LessOrEqual(t, cur.ProbTotal, prev.ProbTotal)
			prev = cur
		}
		assert.Greater(t, prev.Cp, 1e6)
		assert.Equal(t, 0.0, prev.ProbTotal)
	})

	t.Run("zero sigma is undefined", func(t *testing.T) {
		got := ComputeCapability(CapabilityBasis{GrandMean: 10, MeanRange: 0, D2: 2.326}, SpecLimits{LSL: 5, USL: 15})
		assert.True(t, got.Undefined)
		assert.NotEmpty(t, got.Reason)
		for _, v := range []float64{got.SigmaEstimate, got.Cp, got.Cpu, got.Cpl, got.Cpk,
			got.ZUpper, got.ZLower, got.ProbAbove, got.ProbBelow, got.ProbTotal} {
			assert.True(t, math.IsNaN(v))
		}
	})

	t.Run("zero d2 does not divide", func(t *testing.T) {
		got := ComputeCapability(CapabilityBasis{GrandMean: 10, MeanRange: 3, D2: 0}, SpecLimits{LSL: 5, USL: 15})
		assert.True(t, got.Undefined)
	})
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-15)
	assert.InDelta(t, 0.841344746, NormalCDF(1), 1e-9)
	assert.InDelta(t, 0.977249868, NormalCDF(2), 1e-9)
	assert.InDelta(t, 0.001349898, NormalCDF(-3), 1e-9)
	assert.InDelta(t, 1.0, NormalCDF(40), 1e-15)
}

// TestAnalyze covers the end-to-end scenarios
func TestAnalyze(t *testing.T) {
	ctx := context.Background()
	analyzer := NewAnalyzer(testLogger())

	t.Run("worked example", func(t *testing.T) {
		result, err := analyzer.Analyze(ctx, twoSubgroupTable(), &SpecLimits{LSL: 5, USL: 15})
		require.NoError(t, err)

		assert.Equal(t, Overview{Subgroups: 2, SubgroupSize: 5, Observations: 10}, result.Overview)
		assert.Equal(t, 11.0, result.Subgroups[0].Mean)
		assert.Equal(t, 9.0, result.Subgroups[1].Mean)
		assert.Equal(t, 10.0, result.Limits.GrandMean)
		assert.Equal(t, 3.0, result.Limits.MeanRange)
		assert.InDelta(t, 11.731, result.Limits.XBar.Upper, 1e-9)
		require.NotNil(t, result.Capability)
		assert.InDelta(t, 1.2922, result.Capability.Cpk, 1e-3)
		assert.False(t, result.Partial())
	})

	t.Run("subgroup size 11 is fatal", func(t *testing.T) {
		row := values(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
		table := MeasurementTable{Subgroups: []Subgroup{{Label: "1", Measurements: row}}}
		result, err := analyzer.Analyze(ctx, table, nil)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInvalidSubgroupSize)
	})

	t.Run("inconsistent width is fatal", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "1", Measurements: values(1, 2, 3)},
			{Label: "2", Measurements: values(1, 2)},
		}}
		_, err := analyzer.Analyze(ctx, table, nil)
		var sizeErr *InvalidSubgroupSizeError
		require.True(t, errors.As(err, &sizeErr))
		assert.Equal(t, "2", sizeErr.Subgroup)
		assert.Equal(t, 3, sizeErr.Size)
		assert.Equal(t, 2, sizeErr.Width)
	})

	t.Run("empty table", func(t *testing.T) {
		_, err := analyzer.Analyze(ctx, MeasurementTable{}, nil)
		assert.ErrorIs(t, err, ErrEmptyTable)
	})

	t.Run("identical measurements keep limits and flag capability", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "1", Measurements: values(500, 500, 500)},
			{Label: "2", Measurements: values(500, 500, 500)},
		}}
		result, err := analyzer.Analyze(ctx, table, &SpecLimits{LSL: 495, USL: 505})
		require.NoError(t, err)

		assert.Equal(t, 500.0, result.Limits.XBar.Center)
		assert.Equal(t, 500.0, result.Limits.XBar.Upper)
		assert.Equal(t, 500.0, result.Limits.XBar.Lower)
		assert.Equal(t, 0.0, result.Limits.R.Upper)

		require.NotNil(t, result.Capability)
		assert.True(t, result.Capability.Undefined)
		assert.True(t, math.IsNaN(result.Capability.Cp))
		assert.True(t, result.Partial())
		assert.Equal(t, IssueUndefinedCapability, result.Issues[0].Kind)
	})

	t.Run("empty subgroup is reported not fatal", func(t *testing.T) {
		table := twoSubgroupTable()
		table.Subgroups = append(table.Subgroups, Subgroup{
			Label:        "3",
			Measurements: []Measurement{Missing(), Missing(), Missing(), Missing(), Missing()},
		})
		result, err := analyzer.Analyze(ctx, table, nil)
		require.NoError(t, err)
		assert.Equal(t, 10.0, result.Limits.GrandMean)
		assert.Equal(t, 5, result.Overview.Missing)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, IssueEmptySubgroup, result.Issues[0].Kind)
		assert.Equal(t, "3", result.Issues[0].Subgroup)
	})

	t.Run("all missing is fatal", func(t *testing.T) {
		table := MeasurementTable{Subgroups: []Subgroup{
			{Label: "1", Measurements: []Measurement{Missing(), Missing()}},
		}}
		_, err := analyzer.Analyze(ctx, table, nil)
		assert.ErrorIs(t, err, ErrNoMeasurements)
	})

	t.Run("invalid spec limits", func(t *testing.T) {
		_, err := analyzer.Analyze(ctx, twoSubgroupTable(), &SpecLimits{LSL: 15, USL: 5})
		assert.ErrorIs(t, err, ErrInvalidSpecLimits)

		_, err = analyzer.Analyze(ctx, twoSubgroupTable(), &SpecLimits{LSL: math.NaN(), USL: 5})
		assert.ErrorIs(t, err, ErrInvalidSpecLimits)
	})
}

// TestWithSpecLimits verifies spec changes leave control limits untouched
func TestWithSpecLimits(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	result, err := analyzer.Analyze(context.Background(), twoSubgroupTable(), nil)
	require.NoError(t, err)
	assert.Nil(t, result.Capability)

	first, err := result.WithSpecLimits(SpecLimits{LSL: 5, USL: 15})
	require.NoError(t, err)
	second, err := first.WithSpecLimits(SpecLimits{LSL: 8, USL: 12})
	require.NoError(t, err)

	assert.Equal(t, result.Limits, first.Limits)
	assert.Equal(t, result.Limits, second.Limits)
	assert.Nil(t, result.Capability, "original result must not be mutated")
	assert.Greater(t, first.Capability.Cp, second.Capability.Cp)
	assert.Equal(t, SpecLimits{LSL: 8, USL: 12}, *second.Spec)

	_, err = result.WithSpecLimits(SpecLimits{LSL: 1, USL: 1})
	assert.ErrorIs(t, err, ErrInvalidSpecLimits)
}

func TestHistogram(t *testing.T) {
	h := BuildHistogram([]float64{495.2, 496.8, 497.0, 499.99, 500}, 1)
	require.Len(t, h.Bins, 5)
	assert.Equal(t, 495.0, h.Bins[0].Lower)
	assert.Equal(t, 500.0, h.Bins[4].Upper)

	counts := make([]int, len(h.Bins))
	total := 0
	for i, b := range h.Bins {
		counts[i] = b.Count
		total += b.Count
	}
	assert.Equal(t, []int{1, 1, 1, 0, 2}, counts)
	assert.Equal(t, 5, total)

	t.Run("constant values", func(t *testing.T) {
		h := BuildHistogram([]float64{3, 3, 3}, 1)
		require.Len(t, h.Bins, 1)
		assert.Equal(t, 3, h.Bins[0].Count)
	})

	t.Run("default width", func(t *testing.T) {
		assert.Equal(t, 1.0, BuildHistogram(nil, -2).BinWidth)
	})

	t.Run("wide spread is capped", func(t *testing.T) {
		tests := []struct {
			name   string
			values []float64
		}{
			{"ten billion", []float64{0, 5, 1e10}},
			{"near float limits", []float64{-1e300, 1, 2, 1e300}},
			{"full float range", []float64{-math.MaxFloat64, math.MaxFloat64}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := BuildHistogram(tt.values, 1)
				require.Len(t, h.Bins, MaxHistogramBins)
				assert.False(t, math.IsInf(h.BinWidth, 0))
				assert.Equal(t, tt.values[0], h.Bins[0].Lower)
				assert.GreaterOrEqual(t, h.Bins[MaxHistogramBins-1].Upper, tt.values[len(tt.values)-1])

				total := 0
				for _, b := range h.Bins {
					total += b.Count
				}
				assert.Equal(t, len(tt.values), total)
				assert.Equal(t, 1, h.Bins[MaxHistogramBins-1].Count)
			})
		}
	})

	t.Run("huge constant values", func(t *testing.T) {
		h := BuildHistogram([]float64{1e300, 1e300}, 1)
		require.Len(t, h.Bins, 1)
		assert.Equal(t, 2, h.Bins[0].Count)
	})
}

func TestAnalyze_ExtremeSpread(t *testing.T) {
	table := MeasurementTable{Subgroups: []Subgroup{
		{Label: "1", Measurements: values(-1e300, 1e300)},
		{Label: "2", Measurements: values(1, 2)},
	}}

	var (
		result *Result
		err    error
	)
	require.NotPanics(t, func() {
		result, err = NewAnalyzer(testLogger()).Analyze(context.Background(), table, nil)
	})
	require.NoError(t, err)
	assert.Len(t, result.Histogram.Bins, MaxHistogramBins)
	assert.Equal(t, 4, result.Overview.Observations)
}

func TestSummarize(t *testing.T) {
	b := Summarize([]float64{7, 1, 3, 5, 100})
	assert.Equal(t, 1.0, b.Min)
	assert.Equal(t, 3.0, b.Q1)
	assert.Equal(t, 5.0, b.Median)
	assert.Equal(t, 7.0, b.Q3)
	assert.Equal(t, 100.0, b.Max)
	assert.Equal(t, 4.0, b.IQR)
	assert.Equal(t, []float64{100}, b.Outliers)

	assert.True(t, math.IsNaN(Summarize(nil).Median))
}

// TestMeasurementJSON checks the explicit missing marker on the wire
func TestMeasurementJSON(t *testing.T) {
	var sg Subgroup
	err := json.Unmarshal([]byte(`{"label":"A","measurements":[1.5,null,"2.5","abc","3","1,234"]}`), &sg)
	require.NoError(t, err)
	assert.Equal(t, []Measurement{Value(1.5), Missing(), Value(2.5), Missing(), Value(3), Missing()}, sg.Measurements)

	out, err := json.Marshal(sg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"A","measurements":[1.5,null,2.5,null,3,null]}`, string(out))
}

// TestResultJSON checks NaN fields are emitted as null
func TestResultJSON(t *testing.T) {
	table := MeasurementTable{Subgroups: []Subgroup{
		{Label: "1", Measurements: values(1, 1)},
	}}
	result, err := NewAnalyzer(testLogger()).Analyze(context.Background(), table, &SpecLimits{LSL: 0, USL: 2})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	capability := decoded["capability"].(map[string]interface{})
	assert.Nil(t, capability["cp"])
	assert.Equal(t, true, capability["undefined"])
}

// TestCapabilityJSON_Infinity keeps infinite indices distinct from null
func TestCapabilityJSON_Infinity(t *testing.T) {
	c := ComputeCapability(CapabilityBasis{GrandMean: 0, MeanRange: 1, D2: 2}, SpecLimits{LSL: -math.MaxFloat64, USL: math.MaxFloat64})
	require.False(t, c.Undefined)
	require.True(t, math.IsInf(c.Cp, 1))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, PositiveInfinity, decoded["cp"])
	assert.Equal(t, false, decoded["undefined"])

	data, err = json.Marshal(CapabilityResult{Cp: math.NaN(), Cpl: math.Inf(-1), Undefined: true})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["cp"])
	assert.Equal(t, NegativeInfinity, decoded["cpl"])
}

func TestParseMeasurement(t *testing.T) {
	tests := []struct {
		in   string
		want Measurement
	}{
		{"12.5", Value(12.5)},
		{" 7 ", Value(7)},
		{"12,5", Missing()},
		{"1,234", Missing()},
		{"", Missing()},
		{"n/a", Missing()},
		{"NaN", Missing()},
		{"Inf", Missing()},
		{"1,234.5", Missing()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMeasurement(tt.in))
		})
	}
}

func TestParseDecimalCommaMeasurement(t *testing.T) {
	tests := []struct {
		in   string
		want Measurement
	}{
		{"12,5", Value(12.5)},
		{"500", Value(500)},
		{"12.5", Value(12.5)},
		{"1.234,5", Missing()},
		{"1,2,3", Missing()},
		{"", Missing()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDecimalCommaMeasurement(tt.in))
		})
	}
}
