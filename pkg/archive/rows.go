package archive

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for row decoding.
var (
	rowsDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_rows_decoded_total",
		Help: "Total rows decoded from report artifacts by format",
	}, []string{"format"})

	linesRepairedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_csv_lines_repaired_total",
		Help: "Total CSV lines altered by the quoting repair pass",
	})
)

// Row is one report record: column name mapped to string value.
type Row map[string]string

// RowShapeError reports a data line whose field count differs from the
// header. Only returned in strict mode; the default decoder reproduces the
// source behavior of silently truncating to the shorter side.
type RowShapeError struct {
	Line         int
	HeaderFields int
	DataFields   int
}

// Error implements the error interface.
func (e *RowShapeError) Error() string {
	return fmt.Sprintf("row shape mismatch on line %d: header has %d fields, data has %d",
		e.Line, e.HeaderFields, e.DataFields)
}

// The export tool behind the marketplace report endpoints does not escape
// commas inside quoted string fields. The repair pass finds quoted regions
// and rewrites commas sitting between two alphanumeric characters inside
// them to semicolons, so the later split on "," stays aligned with the
// header. This is a heuristic targeting the one malformed pattern the API
// is known to emit, not an RFC 4180 parser: multiple consecutive internal
// commas and quoted newlines are out of scope.
var (
	quotedRegion = regexp.MustCompile(`"[^"]*"`)
	innerComma   = regexp.MustCompile(`([0-9a-zA-Z]),([0-9a-zA-Z])`)
)

// repairLine rewrites unescaped commas inside quoted fields of a single
// CSV line.
func repairLine(line string) string {
	repaired := quotedRegion.ReplaceAllStringFunc(line, func(region string) string {
		return innerComma.ReplaceAllString(region, "$1;$2")
	})
	if repaired != line {
		linesRepairedTotal.Inc()
	}
	return repaired
}

// CSVRows parses a decompressed CSV report body into rows.
//
// Line 0 is the header. Each data line runs through the quoting repair
// pass, is split on ",", and is zipped against the header. With strict
// false a field-count mismatch silently truncates to the shorter of header
// and data (source behavior); with strict true it fails with
// *RowShapeError.
func CSVRows(data []byte, strict bool) ([]Row, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("csv report body has no header line")
	}

	header := splitFields(lines[0])

	rows := make([]Row, 0, len(lines)-1)
	for i, line := range lines[1:] {
		if line == "" {
			continue
		}

		fields := splitFields(repairLine(line))
		if strict && len(fields) != len(header) {
			return nil, &RowShapeError{
				Line:         i + 2,
				HeaderFields: len(header),
				DataFields:   len(fields),
			}
		}

		rows = append(rows, zipRow(header, fields))
	}

	rowsDecodedTotal.WithLabelValues("csv").Add(float64(len(rows)))
	return rows, nil
}

// splitFields splits a repaired line on "," and strips surrounding quotes
// from each field.
func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = strings.Trim(f, `"`)
	}
	return fields
}

// zipRow pairs header names with data fields, stopping at the shorter of
// the two.
func zipRow(header, fields []string) Row {
	n := len(header)
	if len(fields) < n {
		n = len(fields)
	}

	row := make(Row, n)
	for i := 0; i < n; i++ {
		row[header[i]] = fields[i]
	}
	return row
}

// JSONRows parses a decompressed JSON report body into records.
//
// The advertising report endpoints emit either a JSON array of objects or
// newline-delimited JSON objects; both shapes are accepted.
func JSONRows(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var records []map[string]any

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode json report body: %w", err)
		}
		rowsDecodedTotal.WithLabelValues("json").Add(float64(len(records)))
		return records, nil
	}

	for i, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("decode json report line %d: %w", i+1, err)
		}
		records = append(records, record)
	}

	rowsDecodedTotal.WithLabelValues("json").Add(float64(len(records)))
	return records, nil
}

// ReconRows parses a reconciliation report body.
//
// Reconciliation exports carry one metadata line ahead of the true column
// header, so the first line is discarded before reading. These files are
// conventionally delimited and go through encoding/csv rather than the
// repair pass.
func ReconRows(data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	// Metadata line ahead of the header.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read reconciliation metadata line: %w", err)
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read reconciliation header: %w", err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reconciliation row: %w", err)
		}
		rows = append(rows, zipRow(header, record))
	}

	rowsDecodedTotal.WithLabelValues("recon").Add(float64(len(rows)))
	return rows, nil
}
