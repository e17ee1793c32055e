package panel

import (
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowSchema returns the Arrow schema of t: unique_id as string, ds and
// cutoff as nanosecond timestamps (int64 for integer-indexed panels) and one
// nullable float32 field per value column.
func ArrowSchema(t *Table) *arrow.Schema {
	stampType := arrow.DataType(arrow.FixedWidthTypes.Timestamp_ns)
	if len(t.DS) > 0 && t.DS[0].IsIndex() {
		stampType = arrow.PrimitiveTypes.Int64
	}

	fields := []arrow.Field{
		{Name: "unique_id", Type: arrow.BinaryTypes.String},
		{Name: "ds", Type: stampType},
	}
	if t.Cutoffs != nil {
		fields = append(fields, arrow.Field{Name: "cutoff", Type: stampType})
	}
	for _, c := range t.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float32, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes t as an Arrow IPC file holding a single record batch.
// NaN values are written as nulls.
func WriteArrow(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	pool := memory.NewGoAllocator()
	schema := ArrowSchema(t)

	rb := array.NewRecordBuilder(pool, schema)
	defer rb.Release()

	field := 0
	ids := rb.Field(field).(*array.StringBuilder)
	ids.AppendValues(t.IDs, nil)
	field++

	appendStamps(rb.Field(field), t.DS)
	field++
	if t.Cutoffs != nil {
		appendStamps(rb.Field(field), t.Cutoffs)
		field++
	}

	for c := range t.Columns {
		b := rb.Field(field + c).(*array.Float32Builder)
		b.Reserve(t.Len())
		for r := 0; r < t.Len(); r++ {
			v := t.Value(r, c)
			if math.IsNaN(float64(v)) {
				b.AppendNull()
				continue
			}
			b.Append(v)
		}
	}

	rec := rb.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("failed to create Arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return nil
}

func appendStamps(b array.Builder, stamps []Stamp) {
	switch sb := b.(type) {
	case *array.TimestampBuilder:
		for _, s := range stamps {
			sb.Append(arrow.Timestamp(s.Time().UnixNano()))
		}
	case *array.Int64Builder:
		for _, s := range stamps {
			sb.Append(s.Index())
		}
	}
}
