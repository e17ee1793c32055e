package ragged

// Block is a read-only view over consecutive rows of a store.
// Column 0 is the target; columns 1.. are exogenous regressors.
type Block struct {
	data []float32
	cols int
}

// NewBlock wraps a row-major buffer with cols columns per row.
// It panics if the buffer length is not a multiple of cols.
func NewBlock(data []float32, cols int) Block {
	if cols < 1 || len(data)%cols != 0 {
		panic("ragged: block data does not match column count")
	}
	return Block{data: data, cols: cols}
}

// Rows returns the number of rows in the block.
func (b Block) Rows() int {
	if b.cols == 0 {
		return 0
	}
	return len(b.data) / b.cols
}

// Cols returns the row width.
func (b Block) Cols() int {
	return b.cols
}

// At returns the value at row r, column c.
func (b Block) At(r, c int) float32 {
	return b.data[r*b.cols+c]
}

// Row returns row r. The returned slice aliases the block.
func (b Block) Row(r int) []float32 {
	return b.data[r*b.cols : (r+1)*b.cols]
}

// Column copies column c into a float64 slice.
func (b Block) Column(c int) []float64 {
	out := make([]float64, b.Rows())
	for r := range out {
		out[r] = float64(b.data[r*b.cols+c])
	}
	return out
}

// Target copies column 0.
func (b Block) Target() []float64 {
	return b.Column(0)
}

// Slice returns rows lo..hi (exclusive) as a view.
func (b Block) Slice(lo, hi int) Block {
	return Block{data: b.data[lo*b.cols : hi*b.cols], cols: b.cols}
}

// Columns returns a copy of the block without its first `from` columns.
func (b Block) Columns(from int) Block {
	width := b.cols - from
	if width <= 0 {
		return Block{}
	}
	out := make([]float32, 0, b.Rows()*width)
	for r := 0; r < b.Rows(); r++ {
		out = append(out, b.data[r*b.cols+from:(r+1)*b.cols]...)
	}
	return Block{data: out, cols: width}
}
