package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"spcpulse/internal/spc"
)

// Format identifies a supported input file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than csv/xlsx
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoData is returned when the file has a header but no subgroup rows
	ErrNoData = errors.New("no subgroup rows found")
	// ErrNoMeasurementColumns is returned when only the label column exists
	ErrNoMeasurementColumns = errors.New("no measurement columns found")
	// ErrMalformedFile wraps csv and workbook decoding failures
	ErrMalformedFile = errors.New("malformed file")
)

// DetectFormat maps a file name to its format using the extension
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Reader turns CSV and XLSX files into measurement tables.
// The first row is a header, the first column holds the subgroup label and
// every remaining column is one measurement. Non-numeric cells become
// missing measurements.
type Reader struct {
	logger *slog.Logger
	sheet  string
}

// NewReader creates a reader; an empty sheet selects the first worksheet
func NewReader(logger *slog.Logger, sheet string) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger, sheet: sheet}
}

// ReadFile opens path and parses it according to its extension
func (r *Reader) ReadFile(path string) (spc.MeasurementTable, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return spc.MeasurementTable{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return spc.MeasurementTable{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	table, err := r.Read(f, format)
	if err != nil {
		return spc.MeasurementTable{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// Read parses src in the given format
func (r *Reader) Read(src io.Reader, format Format) (spc.MeasurementTable, error) {
	var (
		rows  [][]string
		parse = spc.ParseMeasurement
		err   error
	)

	switch format {
	case FormatCSV:
		var comma rune
		rows, comma, err = readCSV(src)
		if comma == ';' {
			parse = spc.ParseDecimalCommaMeasurement
		}
	case FormatXLSX:
		rows, err = r.readXLSX(src)
	default:
		return spc.MeasurementTable{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return spc.MeasurementTable{}, err
	}

	table, err := fromRows(rows, parse)
	if err != nil {
		return spc.MeasurementTable{}, err
	}

	r.logger.Debug("measurement table parsed",
		slog.String("format", string(format)),
		slog.Int("subgroups", len(table.Subgroups)),
		slog.Int("subgroup_size", table.SubgroupSize()),
	)
	return table, nil
}

// FromRows converts raw rows (header first) into a table. Short rows are
// padded with missing measurements up to the header width; blank rows are
// skipped. A row with values beyond the header width is an
// *spc.InvalidSubgroupSizeError.
func FromRows(rows [][]string) (spc.MeasurementTable, error) {
	return fromRows(rows, spc.ParseMeasurement)
}

func fromRows(rows [][]string, parse func(string) spc.Measurement) (spc.MeasurementTable, error) {
	if len(rows) == 0 {
		return spc.MeasurementTable{}, ErrNoData
	}

	width := len(rows[0]) - 1
	if width < 1 {
		return spc.MeasurementTable{}, ErrNoMeasurementColumns
	}

	var table spc.MeasurementTable
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		label := strings.TrimSpace(row[0])
		if len(row) > width+1 && !isBlank(row[width+1:]) {
			return spc.MeasurementTable{}, &spc.InvalidSubgroupSizeError{
				Size:     width,
				Subgroup: label,
				Width:    lastFilled(row),
			}
		}

		sg := spc.Subgroup{
			Label:        label,
			Measurements: make([]spc.Measurement, width),
		}
		for j := 0; j < width; j++ {
			if j+1 < len(row) {
				sg.Measurements[j] = parse(row[j+1])
			} else {
				sg.Measurements[j] = spc.Missing()
			}
		}
		table.Subgroups = append(table.Subgroups, sg)
	}

	if len(table.Subgroups) == 0 {
		return spc.MeasurementTable{}, ErrNoData
	}
	return table, nil
}

func readCSV(src io.Reader) ([][]string, rune, error) {
	br := bufio.NewReader(src)

	// Strip a UTF-8 BOM written by Excel
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	first, _ := br.Peek(4096)
	comma := sniffDelimiter(first)
	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, comma, fmt.Errorf("%w: parse csv: %v", ErrMalformedFile, err)
	}
	return rows, comma, nil
}

// sniffDelimiter picks ';' for spreadsheets exported with decimal commas
func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}

func (r *Reader) readXLSX(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrMalformedFile, err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoData
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformedFile, sheet, err)
	}
	return rows, nil
}

// lastFilled counts the measurement cells up to the last non-blank one
func lastFilled(row []string) int {
	n := len(row) - 1
	for n > 0 && strings.TrimSpace(row[n]) == "" {
		n--
	}
	return n
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
