// Package chart renders dashboard charts as PNG images with gonum/plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"dashboard/internal/models"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	// ErrEmpty is returned when there is nothing to draw.
	ErrEmpty = errors.New("no data to chart")
	// ErrSingleYear is returned for a trend over fewer than two years.
	ErrSingleYear = errors.New("trend needs at least two years")
)

// Kinds lists the chart names the API accepts.
var Kinds = []string{"provinces", "regencies", "trend", "histogram", "box", "scatter"}

var (
	barColor   = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	lineColor  = color.RGBA{R: 0, G: 100, B: 0, A: 255}
	pointColor = color.RGBA{R: 139, G: 0, B: 0, A: 255}
)

const format = "png"

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = x
	p.Y.Label.Text = y
	return p
}

func save(p *plot.Plot, w io.Writer, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// ProvinceMeans draws the mean prevalence per province as vertical bars,
// in the order given.
func ProvinceMeans(w io.Writer, groups []models.GroupMean, title string) error {
	if len(groups) == 0 {
		return ErrEmpty
	}
	p := newPlot(title, "Provinsi", "Prevalensi")

	values := make(plotter.Values, len(groups))
	labels := make([]string, len(groups))
	for i, g := range groups {
		values[i] = g.Mean
		labels[i] = g.Key
	}

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return err
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())

	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Min = 0

	return save(p, w, 16*vg.Inch, 8*vg.Inch)
}

// Regencies draws one horizontal bar per record, first record on top.
func Regencies(w io.Writer, records []models.Record) error {
	values := make(plotter.Values, 0, len(records))
	labels := make([]string, 0, len(records))
	// Horizontal bars grow upward from index 0, so feed them reversed.
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Prevalence == nil {
			continue
		}
		values = append(values, *r.Prevalence)
		labels = append(labels, r.Regency)
	}
	if len(values) == 0 {
		return ErrEmpty
	}

	p := newPlot("Prevalensi Stunting Seluruh Kabupaten/Kota", "Prevalensi", "Kabupaten/Kota")
	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return err
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalY(labels...)
	p.X.Min = 0

	height := vg.Length(len(values))*vg.Points(12) + 2*vg.Inch
	return save(p, w, 12*vg.Inch, height)
}

// Trend draws mean prevalence per year as a line with markers.
func Trend(w io.Writer, years []models.GroupMean) error {
	if len(years) == 0 {
		return ErrEmpty
	}
	if len(years) < 2 {
		return ErrSingleYear
	}
	p := newPlot("Tren Rata-rata Prevalensi per Tahun", "Tahun", "Prevalensi")

	pts := make(plotter.XYs, len(years))
	labels := make([]string, len(years))
	for i, g := range years {
		pts[i].X = float64(i)
		pts[i].Y = g.Mean
		labels[i] = g.Key
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	points.GlyphStyle.Color = lineColor
	p.Add(line, points, plotter.NewGrid())
	p.NominalX(labels...)

	return save(p, w, 10*vg.Inch, 5*vg.Inch)
}

// Histogram draws the distribution of values in the given number of bins.
func Histogram(w io.Writer, values []float64, bins int) error {
	if len(values) == 0 {
		return ErrEmpty
	}
	p := newPlot("Distribusi Prevalensi", "Prevalensi", "Jumlah")
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return err
	}
	h.FillColor = barColor
	p.Add(h, plotter.NewGrid())
	return save(p, w, 10*vg.Inch, 5*vg.Inch)
}

// Box draws a single box plot of the values.
func Box(w io.Writer, values []float64) error {
	if len(values) == 0 {
		return ErrEmpty
	}
	p := newPlot("Sebaran Prevalensi", "", "Prevalensi")
	b, err := plotter.NewBoxPlot(vg.Points(60), 0, plotter.Values(values))
	if err != nil {
		return err
	}
	b.FillColor = barColor
	p.Add(b)
	p.NominalX("Data Terfilter")
	return save(p, w, 5*vg.Inch, 6*vg.Inch)
}

// Scatter plots prevalence against year for each record.
func Scatter(w io.Writer, records []models.Record) error {
	pts := make(plotter.XYs, 0, len(records))
	for _, r := range records {
		if r.Prevalence == nil {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(r.Year), Y: *r.Prevalence})
	}
	if len(pts) == 0 {
		return ErrEmpty
	}
	p := newPlot("Prevalensi per Tahun", "Tahun", "Prevalensi")
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Radius = vg.Points(3)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s, plotter.NewGrid())
	p.X.Tick.Marker = yearTicks{}
	return save(p, w, 10*vg.Inch, 6*vg.Inch)
}

// yearTicks puts a labelled tick on every whole year in range.
type yearTicks struct{}

func (yearTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for y := math.Ceil(min); y <= max; y++ {
		ticks = append(ticks, plot.Tick{Value: y, Label: strconv.Itoa(int(y))})
	}
	return ticks
}
