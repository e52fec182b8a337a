// Package ingest loads subgrouped measurement data from CSV and XLSX files.
//
// Files follow the layout of the weighing spreadsheets: a header row, then one
// row per subgroup with the sample label in the first column and one
// measurement per remaining column. Cells that do not parse as numbers
// (blank, "n/a", text) become missing measurements instead of errors, so the
// analysis can still run on the remaining data.
package ingest
