package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dashboard/internal/chart"
	"dashboard/internal/config"
	"dashboard/internal/engine"
	"dashboard/internal/export"
	"dashboard/internal/logger"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	exportOut      string
	exportYear     string
	exportProvince string
	exportRegency  string
	exportBins     int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the filtered view and its charts to a directory",
	Long: `Applies the year/province/regency filter to the dataset and writes
data.csv, data.xlsx, data.arrow and one PNG per chart to --out.

Examples:
  dashboard export --year 2022 --province "JAWA BARAT" --out ./out`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the dashboard config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the current settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := "dashboard.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		logger.Info("config written", "path", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)

	f := exportCmd.Flags()
	f.StringVar(&exportOut, "out", "export", "output directory")
	f.StringVar(&exportYear, "year", "", `year filter (empty or "all" for every year)`)
	f.StringVar(&exportProvince, "province", "", `province filter (empty or "Semua provinsi" for all)`)
	f.StringVar(&exportRegency, "regency", "", `regency/city filter (empty or "Semua kabupaten/kota" for all)`)
	f.IntVar(&exportBins, "bins", 0, "histogram bins (default from config)")
}

// exportSelection reads the filter flags the same way the API reads its
// query string, "all" and "Semua provinsi" included.
func exportSelection() (engine.Selection, error) {
	sel, err := engine.ParseSelection(exportYear, exportProvince, exportRegency)
	if err != nil {
		return sel, fmt.Errorf("--year: %w", err)
	}
	return sel, nil
}

func runExport(_ *cobra.Command, _ []string) error {
	log := logger.WithComponent("export")
	sel, err := exportSelection()
	if err != nil {
		return err
	}
	cs, err := engine.Load(cfg.DataPath)
	if err != nil {
		return err
	}
	view := engine.ApplyFilters(cs, sel)
	if len(view) == 0 {
		log.Warn("nothing to export", "selection", sel.String())
		return nil
	}
	if err := os.MkdirAll(exportOut, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	bins := exportBins
	if bins == 0 {
		bins = cfg.DefaultBins
	}
	kpis := engine.ComputeKPIs(cs, view, sel.Year)
	kpis.Label = sel.Label()
	records := cs.Records(view)

	jobs := map[string]func(io.Writer) error{
		"data.csv":   func(w io.Writer) error { return export.WriteCSV(w, cs, view) },
		"data.xlsx":  func(w io.Writer) error { return export.WriteXLSX(w, cs, view, kpis) },
		"data.arrow": func(w io.Writer) error { return export.WriteArrow(w, cs, view) },
		"regencies.png": func(w io.Writer) error {
			return chart.Regencies(w, cs.Records(engine.SortByPrevalence(cs, view)))
		},
		"histogram.png": func(w io.Writer) error { return chart.Histogram(w, cs.Values(view), engine.ClampBins(bins)) },
		"box.png":       func(w io.Writer) error { return chart.Box(w, cs.Values(view)) },
		"scatter.png":   func(w io.Writer) error { return chart.Scatter(w, records) },
		"trend.png": func(w io.Writer) error {
			years := engine.GroupMean(cs, engine.ApplyFilters(cs, engine.Selection{Province: sel.Province}), engine.ByYear)
			return chart.Trend(w, years)
		},
	}
	if cs.Has(engine.ColProvince) {
		jobs["provinces.png"] = func(w io.Writer) error {
			groups := engine.GroupMean(cs, engine.ApplyFilters(cs, engine.Selection{Year: sel.Year}), engine.ByProvince)
			return chart.ProvinceMeans(w, groups, "Rata-rata Stunting per Provinsi")
		}
	}

	var g errgroup.Group
	for name, write := range jobs {
		name, write := name, write // per-iteration copies; go directive is below 1.22
		g.Go(func() error {
			var buf bytes.Buffer
			if err := write(&buf); err != nil {
				if errors.Is(err, chart.ErrEmpty) || errors.Is(err, chart.ErrSingleYear) {
					log.Info("skipping chart", "file", name, "reason", err.Error())
					return nil
				}
				return fmt.Errorf("%s: %w", name, err)
			}
			return os.WriteFile(filepath.Join(exportOut, name), buf.Bytes(), 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("export complete", "dir", exportOut, "rows", len(view), "selection", sel.String())
	return nil
}
