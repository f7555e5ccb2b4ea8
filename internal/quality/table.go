package quality

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a rectangular dataset. Cells are strings; "" marks a missing
// value.
type Table struct {
	Columns []string
	Rows    [][]string
}

// FromCSV parses a CSV document whose first record is the header. Short
// records are padded with missing values.
func FromCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("empty document")
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		row := make([]string, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col index); "" when out of range.
func (t Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Missing reports whether the cell at (row, col) has no value. The markers
// NA and NaN count as missing, matching common epi dataset conventions.
func (t Table) Missing(row, col int) bool {
	v := t.Cell(row, col)
	return v == "" || v == "NA" || v == "NaN"
}

// Numeric reports whether every non-missing cell of the column parses as a
// number and at least one value is present.
func (t Table) Numeric(col int) bool {
	seen := false
	for row := range t.Rows {
		if t.Missing(row, col) {
			continue
		}
		if _, err := strconv.ParseFloat(t.Cell(row, col), 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// Float parses the cell at (row, col). ok is false for missing or
// non-numeric cells.
func (t Table) Float(row, col int) (float64, bool) {
	if t.Missing(row, col) {
		return 0, false
	}
	v, err := strconv.ParseFloat(t.Cell(row, col), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FloatColumn returns the non-missing numeric values of a column in row
// order.
func (t Table) FloatColumn(col int) []float64 {
	var out []float64
	for row := range t.Rows {
		if v, ok := t.Float(row, col); ok {
			out = append(out, v)
		}
	}
	return out
}
