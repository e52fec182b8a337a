package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"spcpulse/internal/spc"
)

// ReportFormat selects the output format of an analysis report
type ReportFormat string

const (
	FormatCSV  ReportFormat = "csv"
	FormatXLSX ReportFormat = "xlsx"
	FormatJSON ReportFormat = "json"
)

// ParseFormat validates a user supplied format name
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q (want csv, xlsx or json)", s)
	}
}

// SubgroupHeaders are the columns of the per-subgroup table
var SubgroupHeaders = []string{"subgroup", "mean", "range", "count", "valid"}

// SummaryHeaders are the columns of the summary table
var SummaryHeaders = []string{"metric", "value"}

// HistogramHeaders are the columns of the histogram table
var HistogramHeaders = []string{"lower", "upper", "count"}

// ReportExporter writes analysis results as CSV, XLSX or JSON reports
type ReportExporter struct {
	baseDir string
	csv     *CSVWriter
	logger  *slog.Logger
}

// NewReportExporter creates an exporter writing below baseDir
func NewReportExporter(baseDir string, logger *slog.Logger) *ReportExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportExporter{
		baseDir: baseDir,
		csv:     NewCSVWriter(baseDir, logger),
		logger:  logger,
	}
}

// Export writes the report for result under name and returns the written paths
func (e *ReportExporter) Export(result *spc.Result, name string, format ReportFormat) ([]string, error) {
	if result == nil {
		return nil, fmt.Errorf("export %s: nil result", name)
	}

	switch format {
	case FormatCSV:
		return e.ExportCSV(result, name)
	case FormatXLSX:
		path, err := e.ExportXLSX(result, name)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatJSON:
		path, err := e.ExportJSON(result, name)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// ExportCSV writes <name>_summary.csv, <name>_subgroups.csv and
// <name>_histogram.csv
func (e *ReportExporter) ExportCSV(result *spc.Result, name string) ([]string, error) {
	files := []struct {
		suffix  string
		options WriteOptions
	}{
		{"_summary.csv", WriteOptions{Headers: SummaryHeaders, Records: SummaryRecords(result), BOMPrefix: true}},
		{"_subgroups.csv", WriteOptions{Headers: SubgroupHeaders, Records: SubgroupRecords(result), BOMPrefix: true}},
		{"_histogram.csv", WriteOptions{Headers: HistogramHeaders, Records: HistogramRecords(result), BOMPrefix: true}},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := e.csv.WriteCSV(name+f.suffix, f.options)
		if err != nil {
			return paths, fmt.Errorf("export %s%s: %w", name, f.suffix, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportJSON writes <name>.json
func (e *ReportExporter) ExportJSON(result *spc.Result, name string) (string, error) {
	path, err := e.create(name + ".json")
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteJSON(file, result); err != nil {
		return "", err
	}

	e.logger.Info("JSON report written", slog.String("path", path))
	return path, nil
}

// ExportXLSX writes a workbook with Summary, Subgroups and Histogram sheets
func (e *ReportExporter) ExportXLSX(result *spc.Result, name string) (string, error) {
	path, err := e.create(name + ".xlsx")
	if err != nil {
		return "", err
	}

	f, err := buildWorkbook(result)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	e.logger.Info("XLSX report written", slog.String("path", path))
	return path, nil
}

// WriteJSON encodes result as indented JSON; NaN fields become null
func WriteJSON(w io.Writer, result *spc.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// SubgroupRecords returns one CSV record per subgroup
func SubgroupRecords(result *spc.Result) [][]string {
	records := make([][]string, 0, len(result.Subgroups))
	for _, sg := range result.Subgroups {
		records = append(records, []string{
			sg.Label,
			formatFloat(sg.Mean),
			formatFloat(sg.Range),
			formatInt(sg.Count),
			formatBool(sg.Valid),
		})
	}
	return records
}

// HistogramRecords returns one CSV record per histogram bin
func HistogramRecords(result *spc.Result) [][]string {
	records := make([][]string, 0, len(result.Histogram.Bins))
	for _, bin := range result.Histogram.Bins {
		records = append(records, []string{
			formatFloat(bin.Lower),
			formatFloat(bin.Upper),
			formatInt(bin.Count),
		})
	}
	return records
}

// SummaryRecords returns the metric/value records of the summary table
func SummaryRecords(result *spc.Result) [][]string {
	rows := summaryRows(result)
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{row.metric, row.text()})
	}
	return records
}

type summaryRow struct {
	metric  string
	value   interface{}
	percent bool
}

func (r summaryRow) text() string {
	switch v := r.value.(type) {
	case float64:
		if r.percent {
			return formatPercent(v)
		}
		return formatFloat(v)
	case int:
		return formatInt(v)
	case bool:
		return formatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// cell returns the workbook value; NaN becomes an empty cell
func (r summaryRow) cell() interface{} {
	if v, ok := r.value.(float64); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return nil
	}
	return r.value
}

func summaryRows(result *spc.Result) []summaryRow {
	ov, d, l := result.Overview, result.Descriptive, result.Limits
	rows := []summaryRow{
		{metric: "subgroups", value: ov.Subgroups},
		{metric: "subgroup_size", value: ov.SubgroupSize},
		{metric: "observations", value: ov.Observations},
		{metric: "missing", value: ov.Missing},
		{metric: "mean", value: d.Mean},
		{metric: "std_dev", value: d.StdDev},
		{metric: "variance", value: d.Variance},
		{metric: "min", value: d.Min},
		{metric: "max", value: d.Max},
		{metric: "range", value: d.Range},
		{metric: "a2", value: l.Constants.A2},
		{metric: "d3", value: l.Constants.D3},
		{metric: "d4", value: l.Constants.D4},
		{metric: "d2", value: l.Constants.D2},
		{metric: "grand_mean", value: l.GrandMean},
		{metric: "mean_range", value: l.MeanRange},
		{metric: "xbar_lcl", value: l.XBar.Lower},
		{metric: "xbar_cl", value: l.XBar.Center},
		{metric: "xbar_ucl", value: l.XBar.Upper},
		{metric: "r_lcl", value: l.R.Lower},
		{metric: "r_cl", value: l.R.Center},
		{metric: "r_ucl", value: l.R.Upper},
	}

	if result.Spec != nil {
		rows = append(rows,
			summaryRow{metric: "lsl", value: result.Spec.LSL},
			summaryRow{metric: "usl", value: result.Spec.USL},
		)
	}

	if c := result.Capability; c != nil {
		rows = append(rows,
			summaryRow{metric: "sigma_estimate", value: c.SigmaEstimate},
			summaryRow{metric: "cp", value: c.Cp},
			summaryRow{metric: "cpu", value: c.Cpu},
			summaryRow{metric: "cpl", value: c.Cpl},
			summaryRow{metric: "cpk", value: c.Cpk},
			summaryRow{metric: "z_upper", value: c.ZUpper},
			summaryRow{metric: "z_lower", value: c.ZLower},
			summaryRow{metric: "prob_above", value: c.ProbAbove, percent: true},
			summaryRow{metric: "prob_below", value: c.ProbBelow, percent: true},
			summaryRow{metric: "prob_total", value: c.ProbTotal, percent: true},
			summaryRow{metric: "capability_undefined", value: c.Undefined},
		)
	}

	for _, issue := range result.Issues {
		msg := issue.Message
		if issue.Subgroup != "" {
			msg = issue.Subgroup + ": " + msg
		}
		rows = append(rows, summaryRow{metric: "issue_" + string(issue.Kind), value: msg})
	}
	return rows
}

func buildWorkbook(result *spc.Result) (*excelize.File, error) {
	f := excelize.NewFile()

	const summary, subgroups, histogram = "Summary", "Subgroups", "Histogram"
	if err := f.SetSheetName(f.GetSheetName(0), summary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{subgroups, histogram} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]interface{}
	}{
		{summary, SummaryHeaders, summaryCells(result)},
		{subgroups, SubgroupHeaders, subgroupCells(result)},
		{histogram, HistogramHeaders, histogramCells(result)},
	}

	for _, s := range sheets {
		if err := writeSheet(f, s.name, s.headers, s.rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryCells(result *spc.Result) [][]interface{} {
	rows := summaryRows(result)
	cells := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []interface{}{row.metric, row.cell()})
	}
	return cells
}

func subgroupCells(result *spc.Result) [][]interface{} {
	cells := make([][]interface{}, 0, len(result.Subgroups))
	for _, sg := range result.Subgroups {
		cells = append(cells, []interface{}{
			sg.Label, finiteOrNil(sg.Mean), finiteOrNil(sg.Range), sg.Count, sg.Valid,
		})
	}
	return cells
}

func histogramCells(result *spc.Result) [][]interface{} {
	cells := make([][]interface{}, 0, len(result.Histogram.Bins))
	for _, bin := range result.Histogram.Bins {
		cells = append(cells, []interface{}{bin.Lower, bin.Upper, bin.Count})
	}
	return cells
}

func finiteOrNil(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func (e *ReportExporter) create(name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) && e.baseDir != "" {
		path = filepath.Join(e.baseDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return path, nil
}
