package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"dashboard/internal/api"
	"dashboard/internal/config"
	"dashboard/internal/engine"
)

const sample = `tahun,nama_provinsi,nama_kabupaten_kota,prevalensi_balita_stunting,satuan
2021,ACEH,KABUPATEN SIMEULUE,21.5,PERSEN
2022,ACEH,KABUPATEN SIMEULUE,19.1,PERSEN
2022,ACEH,KOTA SABANG,15.0,PERSEN
2022,BALI,KOTA DENPASAR,8.2,PERSEN
`

func TestExportSelection(t *testing.T) {
	exportYear, exportProvince, exportRegency = "2022", "ACEH", ""
	t.Cleanup(func() { exportYear, exportProvince, exportRegency = "", "", "" })

	sel, err := exportSelection()
	if err != nil {
		t.Fatal(err)
	}
	if sel.Year == nil || *sel.Year != 2022 || sel.Province != "ACEH" {
		t.Errorf("selection = %s", sel)
	}

	exportYear, exportProvince, exportRegency = "all", "Semua provinsi", "semua"
	sel, err = exportSelection()
	if err != nil {
		t.Fatal(err)
	}
	if sel.Year != nil || sel.Province != "" || sel.Regency != "" {
		t.Errorf("sentinels should clear the filter, got %s", sel)
	}

	exportYear = "last"
	if _, err := exportSelection(); !errors.Is(err, engine.ErrBadYear) {
		t.Errorf("expected ErrBadYear, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"config", "init"})
	if err != nil {
		t.Fatal(err)
	}
	if cmd != configInitCmd {
		t.Fatalf("config init resolved to %q", cmd.CommandPath())
	}

	cfg = config.Default()
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := configInitCmd.RunE(configInitCmd, []string{path}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not written: %v", err)
	}
}

func TestRunExport(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(data, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg = config.Default()
	cfg.DataPath = data
	exportOut = filepath.Join(dir, "out")
	exportYear, exportProvince, exportRegency = "2022", "", ""
	t.Cleanup(func() { exportYear = "" })

	if err := runExport(exportCmd, nil); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"data.csv", "data.xlsx", "data.arrow", "provinces.png", "regencies.png", "trend.png", "histogram.png", "box.png", "scatter.png"} {
		if _, err := os.Stat(filepath.Join(exportOut, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestNewEchoRateLimit(t *testing.T) {
	c := config.Default()
	c.RateLimit = 1
	c.RateBurst = 1
	e := newEcho(c)
	api.NewHandler(nil).RegisterRoutes(e)

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes[i] = rec.Code
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("missing request id")
		}
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected rate limiting, got %v", codes)
	}
}
