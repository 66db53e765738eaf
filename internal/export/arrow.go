package export

import (
	"fmt"
	"io"

	"dashboard/internal/engine"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

func arrowField(col string) arrow.Field {
	switch col {
	case engine.ColYear:
		return arrow.Field{Name: col, Type: arrow.PrimitiveTypes.Int32}
	case engine.ColPrevalence:
		return arrow.Field{Name: col, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
	}
	return arrow.Field{Name: col, Type: arrow.BinaryTypes.String}
}

// ArrowSchema is the schema WriteArrow uses for the store's layout.
func ArrowSchema(cs *engine.ColumnStore) *arrow.Schema {
	layout := cs.Layout()
	fields := make([]arrow.Field, len(layout))
	for c, col := range layout {
		fields[c] = arrowField(col)
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes the view as a single record batch in Arrow IPC stream
// format.
func WriteArrow(w io.Writer, cs *engine.ColumnStore, view engine.View) error {
	mem := memory.NewGoAllocator()
	schema := ArrowSchema(cs)
	layout := cs.Layout()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for c, col := range layout {
		switch fb := b.Field(c).(type) {
		case *array.Int32Builder:
			fb.Reserve(len(view))
			for _, i := range view {
				fb.Append(cs.Years[i])
			}
		case *array.Float64Builder:
			fb.Reserve(len(view))
			for _, i := range view {
				if cs.Valid[i] {
					fb.Append(cs.Prevalence[i])
				} else {
					fb.AppendNull()
				}
			}
		case *array.StringBuilder:
			for _, i := range view {
				fb.Append(cell(cs.Record(i), col))
			}
		default:
			return fmt.Errorf("arrow: unexpected builder for column %s", col)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		_ = wr.Close()
		return fmt.Errorf("arrow: write batch: %w", err)
	}
	return wr.Close()
}
