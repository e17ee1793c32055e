// Package panel holds the tabular side of forecasting: input frames of
// (id, stamp, values) rows, stamps and frequencies, the conversion of a frame
// into a ragged store, result tables and their CSV and Arrow IPC codecs.
package panel

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/HatiCode/panelcast/pkg/ragged"
)

var (
	// ErrShape is returned when rows or tables do not match their declared columns.
	ErrShape = errors.New("invalid panel shape")

	// ErrMixedIndex is returned when a frame mixes calendar and integer stamps.
	ErrMixedIndex = errors.New("frame mixes calendar and integer stamps")

	// ErrEmptyFrame is returned when a frame has no rows.
	ErrEmptyFrame = errors.New("frame has no rows")
)

// Row is one observation of one series.
type Row struct {
	ID     string
	DS     Stamp
	Values []float64
}

// Frame is a long-format panel. Columns names the entries of every row's
// Values; the first is the target for training frames. Rows need not be sorted.
type Frame struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Built is a frame converted to contiguous per-group storage.
type Built struct {
	Store *ragged.Store

	// IDs holds one id per group in store order.
	IDs []string

	// Last holds each group's final stamp.
	Last []Stamp
}

// Build validates f and groups its rows by id into a ragged store ordered by
// (id, stamp). Rows are only re-sorted when the frame is not already ordered;
// the sort is stable so duplicate stamps keep their input order. f is not modified.
func Build(f *Frame) (*Built, error) {
	if f == nil || len(f.Rows) == 0 {
		return nil, ErrEmptyFrame
	}
	cols := len(f.Columns)
	if cols == 0 {
		return nil, fmt.Errorf("%w: frame has no value columns", ErrShape)
	}

	index := f.Rows[0].DS.IsIndex()
	for i, r := range f.Rows {
		if len(r.Values) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(r.Values), cols)
		}
		if r.DS.IsIndex() != index {
			return nil, fmt.Errorf("%w: row %d", ErrMixedIndex, i)
		}
	}

	rows := f.Rows
	if !slices.IsSortedFunc(rows, compareRows) {
		rows = slices.Clone(rows)
		slices.SortStableFunc(rows, compareRows)
	}

	values := make([]float32, 0, len(rows)*cols)
	offsets := []int{0}
	var ids []string
	var last []Stamp

	for i, r := range rows {
		if i > 0 && r.ID != rows[i-1].ID {
			offsets = append(offsets, i)
			last = append(last, rows[i-1].DS)
		}
		if i == 0 || r.ID != rows[i-1].ID {
			ids = append(ids, r.ID)
		}
		for _, v := range r.Values {
			values = append(values, float32(v))
		}
	}
	offsets = append(offsets, len(rows))
	last = append(last, rows[len(rows)-1].DS)

	store, err := ragged.NewStore(values, cols, offsets)
	if err != nil {
		return nil, err
	}
	return &Built{Store: store, IDs: ids, Last: last}, nil
}

// SharedLast reports whether every group ends on the same stamp.
func (b *Built) SharedLast() bool {
	for _, s := range b.Last[1:] {
		if !s.Equal(b.Last[0]) {
			return false
		}
	}
	return true
}

func compareRows(a, b Row) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return a.DS.Compare(b.DS)
}
