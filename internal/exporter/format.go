package exporter

import (
	"math"
	"strconv"
)

// formatFloat renders a value with at most six decimals and no trailing
// zeros. NaN and infinities render as an empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	rounded := math.Round(f*1e6) / 1e6
	if rounded == 0 {
		rounded = 0 // drop negative zero
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// formatInt formats an integer for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatPercent renders a probability as a percentage
func formatPercent(p float64) string {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return ""
	}
	return formatFloat(p*100) + "%"
}
