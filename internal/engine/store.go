package engine

import (
	"errors"

	"dashboard/internal/models"
)

// Source column names.
const (
	ColYear         = "tahun"
	ColProvince     = "nama_provinsi"
	ColRegency      = "nama_kabupaten_kota"
	ColPrevalence   = "prevalensi_balita_stunting"
	ColUnit         = "satuan"
	ColRegencyCode  = "kode_kabupaten_kota"
	ColProvinceCode = "kode_provinsi"
)

// DefaultLayout is the column order used when a store was not built from a file.
var DefaultLayout = []string{
	ColProvinceCode, ColProvince, ColRegencyCode, ColRegency, ColPrevalence, ColUnit, ColYear,
}

var ErrMissingColumn = errors.New("missing column")

// ColumnStore holds the table in struct-of-arrays form.
// It is filled once by the loader and only read afterwards, so it is safe
// to share between goroutines without locking.
type ColumnStore struct {
	// Data columns
	Years      []int32
	Prevalence []float64
	Valid      []bool // false where the prevalence cell was empty

	// Dictionary encoded IDs (0..N)
	ProvinceIDs []int32
	RegencyIDs  []int32
	UnitIDs     []int32

	// Dictionaries (ID -> String)
	ProvinceDict []string
	RegencyDict  []string
	UnitDict     []string

	// Optional code columns, nil when absent from the source
	ProvinceCodes []string
	RegencyCodes  []string

	// Header lists the recognised source columns in file order.
	Header []string
}

func (cs *ColumnStore) Len() int { return len(cs.Years) }

// Has reports whether the source file carried the named column.
func (cs *ColumnStore) Has(col string) bool {
	if len(cs.Header) == 0 {
		switch col {
		case ColProvinceCode:
			return cs.ProvinceCodes != nil
		case ColRegencyCode:
			return cs.RegencyCodes != nil
		}
		return true
	}
	for _, h := range cs.Header {
		if h == col {
			return true
		}
	}
	return false
}

// Layout returns the column order for exports.
func (cs *ColumnStore) Layout() []string {
	if len(cs.Header) > 0 {
		return cs.Header
	}
	out := make([]string, 0, len(DefaultLayout))
	for _, c := range DefaultLayout {
		if cs.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Record materialises row i.
func (cs *ColumnStore) Record(i int) models.Record {
	r := models.Record{
		Province: cs.ProvinceDict[cs.ProvinceIDs[i]],
		Regency:  cs.RegencyDict[cs.RegencyIDs[i]],
		Unit:     cs.UnitDict[cs.UnitIDs[i]],
		Year:     int(cs.Years[i]),
	}
	if cs.Valid[i] {
		v := cs.Prevalence[i]
		r.Prevalence = &v
	}
	if cs.ProvinceCodes != nil {
		r.ProvinceCode = cs.ProvinceCodes[i]
	}
	if cs.RegencyCodes != nil {
		r.RegencyCode = cs.RegencyCodes[i]
	}
	return r
}

// Records materialises every row of the view, in view order.
func (cs *ColumnStore) Records(v View) []models.Record {
	out := make([]models.Record, len(v))
	for k, i := range v {
		out[k] = cs.Record(i)
	}
	return out
}

// values returns the non-null prevalence values of the view.
func (cs *ColumnStore) values(v View) []float64 {
	out := make([]float64, 0, len(v))
	for _, i := range v {
		if cs.Valid[i] {
			out = append(out, cs.Prevalence[i])
		}
	}
	return out
}

// Values is the exported form of values for chart rendering.
func (cs *ColumnStore) Values(v View) []float64 { return cs.values(v) }

func lookup(dict []string, name string) (int32, bool) {
	for id, s := range dict {
		if s == name {
			return int32(id), true
		}
	}
	return 0, false
}

// View is a subset of rows, as indices into the store, in dataset order
// unless a ranking produced it.
type View []int

// All returns a view over every row.
func (cs *ColumnStore) All() View {
	v := make(View, cs.Len())
	for i := range v {
		v[i] = i
	}
	return v
}

func (v View) filter(keep func(i int) bool) View {
	out := make(View, 0, len(v))
	for _, i := range v {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

// dict assigns dense IDs to strings in first-seen order.
type dict struct {
	ids  map[string]int32
	list []string
}

func newDict() *dict { return &dict{ids: make(map[string]int32)} }

func (d *dict) id(s string) int32 {
	if id, ok := d.ids[s]; ok {
		return id
	}
	id := int32(len(d.list))
	d.list = append(d.list, s)
	d.ids[s] = id
	return id
}
