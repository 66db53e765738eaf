package export

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"dashboard/internal/engine"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/xuri/excelize/v2"
)

const source = `tahun,kode_provinsi,nama_provinsi,kode_kabupaten_kota,nama_kabupaten_kota,prevalensi_balita_stunting,satuan
2021,11,ACEH,1101,KABUPATEN SIMEULUE,21.5,PERSEN
2021,11,ACEH,1102,"KABUPATEN ACEH SINGKIL, BARAT",,PERSEN
2022,11,ACEH,1101,KABUPATEN SIMEULUE,19.125,PERSEN
2022,12,SUMATERA UTARA,1201,KABUPATEN NIAS,30.25,PERSEN
`

func load(t *testing.T) *engine.ColumnStore {
	t.Helper()
	cs, err := engine.Read(strings.NewReader(source))
	if err != nil {
		t.Fatal(err)
	}
	return cs
}

func TestCSVRoundTrip(t *testing.T) {
	cs := load(t)
	for _, view := range []engine.View{
		cs.All(),
		engine.ApplyFilters(cs, engine.Selection{Province: "ACEH"}),
		{},
	} {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, cs, view); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "tahun,kode_provinsi,nama_provinsi,") {
			t.Errorf("header does not follow source layout: %q", strings.SplitN(buf.String(), "\n", 2)[0])
		}

		back, err := engine.Read(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if back.Len() != len(view) {
			t.Fatalf("row count %d, want %d", back.Len(), len(view))
		}
		want := cs.Records(view)
		got := back.Records(back.All())
		if len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	cs := load(t)
	view := engine.ApplyFilters(cs, engine.Selection{Province: "ACEH"})
	year := 2021
	kpis := engine.ComputeKPIs(cs, view, &year)
	kpis.Label = "Provinsi ACEH"

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, cs, view, kpis); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(DataSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(view)+1 {
		t.Fatalf("expected %d rows, got %d", len(view)+1, len(rows))
	}
	if rows[0][0] != "tahun" || rows[1][4] != "KABUPATEN SIMEULUE" {
		t.Errorf("unexpected rows: %v", rows[:2])
	}

	label, err := f.GetCellValue(SummarySheet, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if label != "Provinsi ACEH" {
		t.Errorf("summary label = %q", label)
	}
}

func TestWriteArrow(t *testing.T) {
	cs := load(t)
	view := cs.All()

	var buf bytes.Buffer
	if err := WriteArrow(&buf, cs, view); err != nil {
		t.Fatal(err)
	}

	r, err := ipc.NewReader(&buf, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()

	if !r.Schema().Equal(ArrowSchema(cs)) {
		t.Errorf("schema mismatch: %v", r.Schema())
	}
	if !r.Next() {
		t.Fatal("no record batch")
	}
	rec := r.Record()
	if rec.NumRows() != int64(len(view)) {
		t.Fatalf("rows = %d", rec.NumRows())
	}

	years := rec.Column(0).(*array.Int32)
	if years.Value(3) != 2022 {
		t.Errorf("year[3] = %d", years.Value(3))
	}
	prev := rec.Column(5).(*array.Float64)
	if !prev.IsNull(1) || prev.Value(3) != 30.25 {
		t.Errorf("prevalence column wrong: %v", prev)
	}
	names := rec.Column(4).(*array.String)
	if names.Value(1) != "KABUPATEN ACEH SINGKIL, BARAT" {
		t.Errorf("name[1] = %q", names.Value(1))
	}
}
