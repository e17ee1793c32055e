package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// CSVOptions holds options for reading a long-format panel from CSV.
type CSVOptions struct {
	IDColumn     string // Column name for the series id (default: "unique_id")
	TimeColumn   string // Column name for stamps (default: "ds")
	TargetColumn string // Column moved to the front of Values (default: "y"); absent is allowed
	Delimiter    rune   // Field delimiter (default: ',')
}

// DefaultCSVOptions returns default options for CSV loading.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		IDColumn:     "unique_id",
		TimeColumn:   "ds",
		TargetColumn: "y",
		Delimiter:    ',',
	}
}

func (o CSVOptions) withDefaults() CSVOptions {
	d := DefaultCSVOptions()
	if o.IDColumn == "" {
		o.IDColumn = d.IDColumn
	}
	if o.TimeColumn == "" {
		o.TimeColumn = d.TimeColumn
	}
	if o.TargetColumn == "" {
		o.TargetColumn = d.TargetColumn
	}
	if o.Delimiter == 0 {
		o.Delimiter = d.Delimiter
	}
	return o
}

// LoadCSV reads a frame from a CSV file.
func LoadCSV(filename string, opts CSVOptions) (*Frame, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadCSV(file, opts)
}

// ReadCSV reads a frame with a header row. Every column other than the id and
// time columns becomes a value column, with the target column first when
// present. Empty cells and "NaN" read as NaN.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFrame
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idIdx, dsIdx := -1, -1
	var valueIdx []int
	var columns []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch h {
		case opts.IDColumn:
			idIdx = i
		case opts.TimeColumn:
			dsIdx = i
		case opts.TargetColumn:
			valueIdx = append([]int{i}, valueIdx...)
			columns = append([]string{h}, columns...)
		default:
			valueIdx = append(valueIdx, i)
			columns = append(columns, h)
		}
	}
	if idIdx == -1 || dsIdx == -1 {
		return nil, fmt.Errorf("%w: header must contain %q and %q", ErrShape, opts.IDColumn, opts.TimeColumn)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no value columns", ErrShape)
	}

	frame := &Frame{Columns: columns}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ds, err := ParseStamp(record[dsIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]float64, len(valueIdx))
		for j, idx := range valueIdx {
			values[j], err = parseValue(record[idx])
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, header[idx], err)
			}
		}
		frame.Rows = append(frame.Rows, Row{ID: record[idIdx], DS: ds, Values: values})
	}

	if len(frame.Rows) == 0 {
		return nil, ErrEmptyFrame
	}
	return frame, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes t with its header. NaN values are written as empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, 0, len(t.Header()))
	for r := 0; r < t.Len(); r++ {
		record = append(record[:0], t.IDs[r], t.DS[r].String())
		if t.Cutoffs != nil {
			record = append(record, t.Cutoffs[r].String())
		}
		for c := range t.Columns {
			v := t.Value(r, c)
			if math.IsNaN(float64(v)) {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(float64(v), 'f', -1, 32))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
