// Package export writes a filtered view of the dataset as CSV, XLSX or an
// Arrow IPC stream. All formats use the source file's column layout.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"dashboard/internal/engine"
	"dashboard/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	DataSheet    = "Data"
	SummarySheet = "Ringkasan"
)

// cell renders one column of a record the way the source file stores it.
func cell(r models.Record, col string) string {
	switch col {
	case engine.ColYear:
		return strconv.Itoa(r.Year)
	case engine.ColProvince:
		return r.Province
	case engine.ColRegency:
		return r.Regency
	case engine.ColPrevalence:
		if r.Prevalence == nil {
			return ""
		}
		return strconv.FormatFloat(*r.Prevalence, 'f', -1, 64)
	case engine.ColUnit:
		return r.Unit
	case engine.ColProvinceCode:
		return r.ProvinceCode
	case engine.ColRegencyCode:
		return r.RegencyCode
	}
	return ""
}

// WriteCSV writes the view with a header row, comma separated, UTF-8.
func WriteCSV(w io.Writer, cs *engine.ColumnStore, view engine.View) error {
	layout := cs.Layout()
	cw := csv.NewWriter(w)
	if err := cw.Write(layout); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(layout))
	for _, i := range view {
		r := cs.Record(i)
		for c, col := range layout {
			row[c] = cell(r, col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the view to a "Data" sheet and the KPIs to a
// "Ringkasan" sheet.
func WriteXLSX(w io.Writer, cs *engine.ColumnStore, view engine.View, kpis models.KPIs) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return err
	}

	layout := cs.Layout()
	header := make([]interface{}, len(layout))
	for c, col := range layout {
		header[c] = col
		name, _ := excelize.ColumnNumberToName(c + 1)
		_ = f.SetColWidth(DataSheet, name, name, 22)
	}
	if err := f.SetSheetRow(DataSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for k, i := range view {
		r := cs.Record(i)
		row := make([]interface{}, len(layout))
		for c, col := range layout {
			switch col {
			case engine.ColYear:
				row[c] = r.Year
			case engine.ColPrevalence:
				if r.Prevalence != nil {
					row[c] = *r.Prevalence
				}
			default:
				row[c] = cell(r, col)
			}
		}
		addr, _ := excelize.CoordinatesToCellName(1, k+2)
		if err := f.SetSheetRow(DataSheet, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", k, err)
		}
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	summary := [][]interface{}{
		{"Keterangan", kpis.Label},
		{"Jumlah Baris", kpis.Count},
		{"Rata-rata Nasional", optional(kpis.NationalMean)},
		{"Rata-rata Terfilter", optional(kpis.FilteredMean)},
		{"Maksimum", optional(kpis.FilteredMax)},
		{"Minimum", optional(kpis.FilteredMin)},
	}
	for k, row := range summary {
		addr, _ := excelize.CoordinatesToCellName(1, k+1)
		if err := f.SetSheetRow(SummarySheet, addr, &row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "B", 24)

	return f.Write(w)
}

func optional(v *float64) interface{} {
	if v == nil {
		return "-"
	}
	return *v
}
