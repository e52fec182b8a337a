package spc

import (
	"errors"
	"math"
	"sort"
)

// Aggregate reduces every subgroup to its mean and range.
//
// One SubgroupStat is returned per subgroup, in table order. Subgroups
// without any valid measurement get Valid=false and NaN mean/range; each of
// them is reported through the returned error as an *EmptySubgroupError
// (joined), which satisfies errors.Is(err, ErrUndefinedCapability).
func Aggregate(table MeasurementTable) ([]SubgroupStat, error) {
	stats := make([]SubgroupStat, len(table.Subgroups))
	var errs []error

	for i, sg := range table.Subgroups {
		values := sg.ValidValues()
		stats[i] = SubgroupStat{
			Label: sg.Label,
			Count: len(values),
		}

		if len(values) == 0 {
			stats[i].Mean = math.NaN()
			stats[i].Range = math.NaN()
			errs = append(errs, &EmptySubgroupError{Index: i, Label: sg.Label})
			continue
		}

		lo, hi := minMax(values)
		stats[i].Mean = mean(values)
		stats[i].Range = hi - lo
		stats[i].Valid = true
	}

	return stats, errors.Join(errs...)
}

// Describe computes pooled statistics over every non-missing measurement.
// With fewer than two observations the sample deviation is NaN; with none,
// every field except Count is NaN.
func Describe(table MeasurementTable) DescriptiveStats {
	return describeValues(table.Values())
}

func describeValues(values []float64) DescriptiveStats {
	d := DescriptiveStats{Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		d.Mean, d.StdDev, d.Variance = nan, nan, nan
		d.Min, d.Max, d.Range = nan, nan, nan
		return d
	}

	d.Mean = mean(values)
	d.Min, d.Max = minMax(values)
	d.Range = d.Max - d.Min
	d.Variance = sampleVariance(values, d.Mean)
	d.StdDev = math.Sqrt(d.Variance)
	return d
}

// MaxHistogramBins bounds the bin count; wider spreads get wider bins
const MaxHistogramBins = 1000

// BuildHistogram bins values into fixed-width buckets spanning
// floor(min) to ceil(max). A non-positive width defaults to 1. When that
// would need more than MaxHistogramBins bins, the span [min, max] is split
// into exactly MaxHistogramBins equal bins instead.
func BuildHistogram(values []float64, width float64) Histogram {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		width = 1
	}
	if len(values) == 0 {
		return Histogram{BinWidth: width}
	}

	lo, hi := minMax(values)
	start := math.Floor(lo/width) * width
	end := math.Ceil(hi/width) * width
	if end <= start {
		end = start + width
	}

	bins := (end - start) / width
	edge := func(i int) float64 { return start + float64(i)*width }
	offset := func(v float64) float64 { return (v - start) / width }
	if math.IsInf(bins, 0) || bins > MaxHistogramBins {
		// Interpolate instead of start+i*width so spans near MaxFloat64 stay finite
		width = hi/MaxHistogramBins - lo/MaxHistogramBins
		bins = MaxHistogramBins
		edge = func(i int) float64 {
			f := float64(i) / MaxHistogramBins
			return lo*(1-f) + hi*f
		}
		offset = func(v float64) float64 { return v/width - lo/width }
	}
	if !(bins >= 1) {
		// lo == hi at magnitudes where start+width rounds back to start
		bins = 1
	}

	numBins := int(math.Round(bins))
	h := Histogram{BinWidth: width, Bins: make([]HistogramBin, numBins)}
	for i := range h.Bins {
		h.Bins[i].Lower = edge(i)
		h.Bins[i].Upper = edge(i + 1)
	}
	h.Bins[numBins-1].Upper = math.Max(h.Bins[numBins-1].Upper, hi)

	for _, v := range values {
		idx := int(math.Floor(offset(v)))
		if idx >= numBins {
			idx = numBins - 1 // right edge belongs to the last bin
		}
		if idx < 0 {
			idx = 0
		}
		h.Bins[idx].Count++
	}
	return h
}

// Summarize computes the box-plot summary using linearly interpolated
// quartiles and Tukey fences at 1.5 IQR.
func Summarize(values []float64) BoxSummary {
	if len(values) == 0 {
		nan := math.NaN()
		return BoxSummary{Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan,
			IQR: nan, LowerFence: nan, UpperFence: nan}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	b := BoxSummary{
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.50),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
	b.IQR = b.Q3 - b.Q1
	b.LowerFence = b.Q1 - 1.5*b.IQR
	b.UpperFence = b.Q3 + 1.5*b.IQR

	for _, v := range sorted {
		if v < b.LowerFence || v > b.UpperFence {
			b.Outliers = append(b.Outliers, v)
		}
	}
	return b
}

// quantile expects sorted input
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleVariance(values []float64, m float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return ss / float64(len(values)-1)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
