package panel

import (
	"encoding/json"
	"fmt"
	"math"
)

// Table is a result table: one row per (group, step) for forecasts and one
// row per (group, window, step) for cross-validation. Values is row-major with
// len(Columns) entries per row.
type Table struct {
	// Columns names the value columns, e.g. "y", "naive", "naive_lo-80".
	Columns []string

	IDs []string
	DS  []Stamp

	// Cutoffs is set for cross-validation tables and nil otherwise.
	Cutoffs []Stamp

	Values []float32
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.IDs)
}

// Header returns the full column list: unique_id, ds, cutoff when present,
// then the value columns.
func (t *Table) Header() []string {
	header := []string{"unique_id", "ds"}
	if t.Cutoffs != nil {
		header = append(header, "cutoff")
	}
	return append(header, t.Columns...)
}

// Value returns the value at row and value column col.
func (t *Table) Value(row, col int) float32 {
	return t.Values[row*len(t.Columns)+col]
}

// Column copies the named value column, or returns nil if absent.
func (t *Table) Column(name string) []float32 {
	for c, n := range t.Columns {
		if n != name {
			continue
		}
		out := make([]float32, t.Len())
		for r := range out {
			out[r] = t.Value(r, c)
		}
		return out
	}
	return nil
}

// Validate checks that every per-row slice has Len entries.
func (t *Table) Validate() error {
	n := t.Len()
	if len(t.DS) != n {
		return fmt.Errorf("%w: %d stamps for %d rows", ErrShape, len(t.DS), n)
	}
	if t.Cutoffs != nil && len(t.Cutoffs) != n {
		return fmt.Errorf("%w: %d cutoffs for %d rows", ErrShape, len(t.Cutoffs), n)
	}
	if len(t.Values) != n*len(t.Columns) {
		return fmt.Errorf("%w: %d values for %d rows x %d columns", ErrShape, len(t.Values), n, len(t.Columns))
	}
	return nil
}

type tableJSON struct {
	Columns []string     `json:"columns"`
	IDs     []string     `json:"unique_id"`
	DS      []Stamp      `json:"ds"`
	Cutoffs []Stamp      `json:"cutoff,omitempty"`
	Values  [][]*float64 `json:"values"`
}

// MarshalJSON encodes values as one array per row. JSON has no NaN or
// infinities, so every non-finite value is written as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, t.Len())
	for r := range rows {
		row := make([]*float64, len(t.Columns))
		for c := range row {
			v := float64(t.Value(r, c))
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				row[c] = &v
			}
		}
		rows[r] = row
	}
	return json.Marshal(tableJSON{
		Columns: t.Columns,
		IDs:     t.IDs,
		DS:      t.DS,
		Cutoffs: t.Cutoffs,
		Values:  rows,
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	values := make([]float32, 0, len(raw.Values)*len(raw.Columns))
	nan := float32(math.NaN())
	for r, row := range raw.Values {
		if len(row) != len(raw.Columns) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, r, len(row), len(raw.Columns))
		}
		for _, v := range row {
			if v == nil {
				values = append(values, nan)
				continue
			}
			values = append(values, float32(*v))
		}
	}

	*t = Table{
		Columns: raw.Columns,
		IDs:     raw.IDs,
		DS:      raw.DS,
		Cutoffs: raw.Cutoffs,
		Values:  values,
	}
	return t.Validate()
}
