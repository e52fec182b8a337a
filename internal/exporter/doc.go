// Package exporter writes SPC analysis reports to disk.
//
// This package contains two components:
//
// CSVWriter: Core CSV writing with headers and an optional UTF-8 BOM so Excel
// opens the files with the right encoding.
//
// ReportExporter: Turns an spc.Result into a report in one of three formats:
//
//   - csv:  <name>_summary.csv, <name>_subgroups.csv and <name>_histogram.csv
//   - xlsx: one workbook with Summary, Subgroups and Histogram sheets
//   - json: the Result encoded as indented JSON
//
// Undefined values (NaN) are written as empty cells or JSON null, never as 0.
//
// Example usage:
//
//	exp := exporter.NewReportExporter("reports", logger)
//	paths, err := exp.Export(result, "line-3", exporter.FormatXLSX)
package exporter
