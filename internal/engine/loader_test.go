package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"dashboard/internal/logger"
)

func TestLoad(t *testing.T) {
	csvContent := []byte(`kode_provinsi,nama_provinsi,kode_kabupaten_kota,nama_kabupaten_kota,prevalensi_balita_stunting,satuan,tahun
11,ACEH,1101,KABUPATEN SIMEULUE,21.5,PERSEN,2021
11,ACEH,1102,  KABUPATEN ACEH SINGKIL ,,PERSEN,2021
12,SUMATERA UTARA,1201,KABUPATEN NIAS,30.25,PERSEN,2022
`)

	tmpFile, err := os.CreateTemp("", "test_data_*.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(csvContent); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}

	store, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatal(err)
	}

	if store.Len() != 3 {
		t.Fatalf("Expected 3 rows, got %d", store.Len())
	}

	r0 := store.Record(0)
	if r0.Prevalence == nil || *r0.Prevalence != 21.5 {
		t.Errorf("Row 0 prevalence: expected 21.5, got %v", r0.Prevalence)
	}
	if r0.Year != 2021 || r0.RegencyCode != "1101" || r0.ProvinceCode != "11" {
		t.Errorf("Row 0 unexpected: %+v", r0)
	}

	// Empty prevalence is null, names are trimmed
	r1 := store.Record(1)
	if r1.Prevalence != nil {
		t.Errorf("Row 1 prevalence: expected null, got %v", *r1.Prevalence)
	}
	if r1.Regency != "KABUPATEN ACEH SINGKIL" {
		t.Errorf("Row 1 regency not trimmed: %q", r1.Regency)
	}

	if len(store.ProvinceDict) != 2 {
		t.Errorf("Expected 2 unique provinces, got %d", len(store.ProvinceDict))
	}
	if len(store.UnitDict) != 1 {
		t.Errorf("Expected 1 unique unit, got %d", len(store.UnitDict))
	}
	if strings.Join(store.Layout(), ",") != strings.Join(DefaultLayout, ",") {
		t.Errorf("Layout should follow the file header, got %v", store.Layout())
	}
}

func TestReadSemicolonAndBOM(t *testing.T) {
	in := "\xEF\xBB\xBFtahun;nama_provinsi;nama_kabupaten_kota;prevalensi_balita_stunting\n" +
		"2022;ACEH;KOTA BANDA ACEH;19,5\n" +
		"2022;ACEH;KOTA SABANG;\"18.0\"\n"
	store, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", store.Len())
	}
	if store.Prevalence[0] != 19.5 || store.Prevalence[1] != 18.0 {
		t.Errorf("Unexpected prevalence values: %v", store.Prevalence)
	}
	if store.Has(ColUnit) || store.Has(ColProvinceCode) {
		t.Error("absent columns reported as present")
	}
	if !store.Has(ColYear) || !store.Has(ColRegency) {
		t.Error("present columns reported as absent")
	}
}

func TestReadMissingRequiredColumn(t *testing.T) {
	_, err := Read(strings.NewReader("nama_provinsi,prevalensi_balita_stunting\nACEH,20\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestReadSkipsBadYear(t *testing.T) {
	in := "tahun,nama_provinsi,prevalensi_balita_stunting\n2022,ACEH,10\nn/a,ACEH,11\n2023.0,ACEH,12\n"
	store, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", store.Len())
	}
	if store.Years[1] != 2023 {
		t.Errorf("Expected 2023, got %d", store.Years[1])
	}
}

func TestReadSkipsOutOfRangeYear(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { logger.Logger = prev })

	in := "tahun,nama_provinsi,prevalensi_balita_stunting\n2022,ACEH,10\n4294969318,ACEH,11\n"
	store, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 || store.Years[0] != 2022 {
		t.Fatalf("Expected only the 2022 row, got %v", store.Years)
	}
	out := buf.String()
	if !strings.Contains(out, `"skipped":1`) {
		t.Errorf("skip not reported: %s", out)
	}
	if !strings.Contains(out, `"component":"loader"`) {
		t.Errorf("loader logs untagged: %s", out)
	}
}

func TestCellHelpers(t *testing.T) {
	if y, ok := parseYear(" 2021 "); !ok || y != 2021 {
		t.Errorf("parseYear failed: %v %v", y, ok)
	}
	if _, ok := parseYear("2021.5"); ok {
		t.Error("parseYear accepted a fractional year")
	}
	for _, s := range []string{"4294969318", "-2147483649", "4294969318.0"} {
		if y, ok := parseYear(s); ok {
			t.Errorf("parseYear(%q) = %d, want rejected", s, y)
		}
	}
	if f, ok := parsePrevalence("12,75"); !ok || f != 12.75 {
		t.Errorf("parsePrevalence comma failed: %v", f)
	}
	if _, ok := parsePrevalence("NaN"); ok {
		t.Error("parsePrevalence accepted NaN")
	}
	if d := sniffDelimiter([]byte("a\tb\tc")); d != '\t' {
		t.Errorf("sniffDelimiter: got %q", d)
	}
	// "é" composed vs decomposed
	if cleanName(" Jawa Te\u0301ngah ") != "Jawa T\u00e9ngah" {
		t.Error("cleanName did not NFC-normalise")
	}
}
