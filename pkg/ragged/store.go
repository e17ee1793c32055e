// Package ragged provides the contiguous storage used for panel time series.
//
// All groups live in one flat, row-major float32 buffer. An offsets index of
// length G+1 marks where each group starts and ends, so group i occupies rows
// offsets[i]..offsets[i+1]. Column 0 of every row is the target value and the
// remaining columns are exogenous regressors aligned with it.
//
// Stores are immutable once built. Slice and Split return deep copies so that
// chunks can be handed to independent workers without sharing memory.
package ragged

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrIndexOutOfRange is returned when a group index or range falls outside the store.
	ErrIndexOutOfRange = errors.New("group index out of range")

	// ErrInvalidOffsets is returned when an offsets index breaks the store invariants.
	ErrInvalidOffsets = errors.New("invalid offsets")

	// ErrShape is returned when a values buffer does not match the declared width.
	ErrShape = errors.New("shape mismatch")
)

const (
	relTolerance = 1e-5
	absTolerance = 1e-8
)

// Store is a ragged array of G variable-length groups.
type Store struct {
	values  []float32
	cols    int
	offsets []int
}

// NewStore creates a store from a row-major values buffer with cols columns per
// row and a G+1 offsets index expressed in rows. The inputs are not copied.
func NewStore(values []float32, cols int, offsets []int) (*Store, error) {
	if cols < 1 {
		return nil, fmt.Errorf("%w: cols must be >= 1, got %d", ErrShape, cols)
	}
	if len(values)%cols != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of %d columns", ErrShape, len(values), cols)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: offsets cannot be empty", ErrInvalidOffsets)
	}
	if offsets[0] != 0 {
		return nil, fmt.Errorf("%w: offsets[0] = %d, want 0", ErrInvalidOffsets, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, fmt.Errorf("%w: offsets decrease at %d", ErrInvalidOffsets, i)
		}
	}
	rows := len(values) / cols
	if last := offsets[len(offsets)-1]; last != rows {
		return nil, fmt.Errorf("%w: offsets end at %d but store holds %d rows", ErrInvalidOffsets, last, rows)
	}

	return &Store{values: values, cols: cols, offsets: offsets}, nil
}

// NGroups returns the number of groups.
func (s *Store) NGroups() int {
	return len(s.offsets) - 1
}

// Cols returns the row width.
func (s *Store) Cols() int {
	return s.cols
}

// Rows returns the total number of rows across all groups.
func (s *Store) Rows() int {
	return s.offsets[len(s.offsets)-1]
}

// Offsets returns a copy of the offsets index.
func (s *Store) Offsets() []int {
	out := make([]int, len(s.offsets))
	copy(out, s.offsets)
	return out
}

// Values returns a copy of the flat values buffer.
func (s *Store) Values() []float32 {
	out := make([]float32, len(s.values))
	copy(out, s.values)
	return out
}

// Get returns the row block of group i.
func (s *Store) Get(i int) (Block, error) {
	if i < 0 || i >= s.NGroups() {
		return Block{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, s.NGroups())
	}
	lo, hi := s.offsets[i], s.offsets[i+1]
	return Block{data: s.values[lo*s.cols : hi*s.cols], cols: s.cols}, nil
}

// Slice returns a new store holding groups start through stop, both inclusive.
// Offsets are rebased to zero and the covered values are copied.
func (s *Store) Slice(start, stop int) (*Store, error) {
	if start < 0 || stop >= s.NGroups() || start > stop {
		return nil, fmt.Errorf("%w: slice [%d, %d] of %d groups", ErrIndexOutOfRange, start, stop, s.NGroups())
	}

	offsets := make([]int, stop-start+2)
	base := s.offsets[start]
	for i := range offsets {
		offsets[i] = s.offsets[start+i] - base
	}

	lo, hi := base*s.cols, s.offsets[stop+1]*s.cols
	values := make([]float32, hi-lo)
	copy(values, s.values[lo:hi])

	return &Store{values: values, cols: s.cols, offsets: offsets}, nil
}

// Split partitions the groups into at most n contiguous chunks of nearly equal
// group count. The first G mod n chunks receive one extra group. Empty chunks
// are dropped, so concatenating the result reproduces the store exactly.
func (s *Store) Split(n int) []*Store {
	if n < 1 {
		n = 1
	}
	g := s.NGroups()
	size, extra := g/n, g%n

	chunks := make([]*Store, 0, min(n, g))
	start := 0
	for i := 0; i < n; i++ {
		count := size
		if i < extra {
			count++
		}
		if count == 0 {
			continue
		}
		// bounds come from the store itself, Slice cannot fail here
		chunk, _ := s.Slice(start, start+count-1)
		chunks = append(chunks, chunk)
		start += count
	}
	return chunks
}

// Equal reports whether both stores have identical offsets and width and
// element-wise approximately equal values.
func (s *Store) Equal(other *Store) bool {
	if other == nil {
		return false
	}
	if s.cols != other.cols || len(s.offsets) != len(other.offsets) || len(s.values) != len(other.values) {
		return false
	}
	for i := range s.offsets {
		if s.offsets[i] != other.offsets[i] {
			return false
		}
	}
	for i := range s.values {
		if !closeEnough(float64(s.values[i]), float64(other.values[i])) {
			return false
		}
	}
	return true
}

// Concat joins stores with the same width into one, in argument order.
func Concat(stores ...*Store) (*Store, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShape)
	}
	cols := stores[0].cols
	var rows int
	groups := 0
	for _, s := range stores {
		if s.cols != cols {
			return nil, fmt.Errorf("%w: width %d != %d", ErrShape, s.cols, cols)
		}
		rows += s.Rows()
		groups += s.NGroups()
	}

	values := make([]float32, 0, rows*cols)
	offsets := make([]int, 1, groups+1)
	for _, s := range stores {
		base := offsets[len(offsets)-1]
		values = append(values, s.values...)
		for _, off := range s.offsets[1:] {
			offsets = append(offsets, base+off)
		}
	}
	return &Store{values: values, cols: cols, offsets: offsets}, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(n_data=%d, n_groups=%d)", len(s.values), s.NGroups())
}

func closeEnough(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= absTolerance+relTolerance*math.Abs(b)
}
