package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"dashboard/internal/models"

	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Ranking and histogram bounds.
const (
	MinRank     = 5
	MaxRank     = 50
	MinBins     = 5
	MaxBins     = 50
	DefaultBins = 20
)

// Selection is the active filter. A nil Year and empty names mean
// "no constraint" for that dimension.
type Selection struct {
	Year     *int
	Province string
	Regency  string
}

// Label is the KPI caption for the selection.
func (s Selection) Label() string {
	switch {
	case s.Regency != "":
		return s.Regency
	case s.Province != "":
		return "Provinsi " + s.Province
	}
	return "Rata-rata Data Terfilter"
}

func (s Selection) String() string {
	y := "*"
	if s.Year != nil {
		y = strconv.Itoa(*s.Year)
	}
	return fmt.Sprintf("year=%s province=%q regency=%q", y, s.Province, s.Regency)
}

// ErrBadYear is returned by ParseSelection for a year that is not an integer.
var ErrBadYear = errors.New("invalid year")

var allSentinels = []string{"all", "semua", "Semua provinsi", "Semua kabupaten/kota"}

// IsAll reports whether a raw filter value means "no constraint".
func IsAll(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, sentinel := range allSentinels {
		if strings.EqualFold(s, sentinel) {
			return true
		}
	}
	return false
}

// ParseSelection builds a Selection from raw filter values as they come
// from a query string or command-line flags.
func ParseSelection(year, province, regency string) (Selection, error) {
	var sel Selection
	if !IsAll(year) {
		y := strings.TrimSpace(year)
		n, err := strconv.Atoi(y)
		if err != nil {
			return sel, fmt.Errorf("%w %q", ErrBadYear, y)
		}
		sel.Year = &n
	}
	if !IsAll(province) {
		sel.Province = strings.TrimSpace(province)
	}
	if !IsAll(regency) {
		sel.Regency = strings.TrimSpace(regency)
	}
	return sel, nil
}

// ApplyFilters narrows the store by year, then province, then regency.
// Each step works on the output of the previous one. The result keeps
// dataset order and may be empty.
func ApplyFilters(cs *ColumnStore, sel Selection) View {
	view := cs.All()
	if sel.Year != nil {
		// Years are stored as int32; anything wider matches nothing.
		if *sel.Year < math.MinInt32 || *sel.Year > math.MaxInt32 {
			return View{}
		}
		y := int32(*sel.Year)
		view = view.filter(func(i int) bool { return cs.Years[i] == y })
	}
	if sel.Province != "" {
		pid, ok := lookup(cs.ProvinceDict, sel.Province)
		if !ok {
			return View{}
		}
		view = view.filter(func(i int) bool { return cs.ProvinceIDs[i] == pid })
	}
	if sel.Regency != "" {
		rid, ok := lookup(cs.RegencyDict, sel.Regency)
		if !ok {
			return View{}
		}
		view = view.filter(func(i int) bool { return cs.RegencyIDs[i] == rid })
	}
	return view
}

// Candidates computes the dropdown options for a partial selection:
// every year, the provinces present in that year, and the regencies
// present under year and province.
func Candidates(cs *ColumnStore, year *int, province string) models.Options {
	years := make(map[int]struct{})
	for _, y := range cs.Years {
		years[int(y)] = struct{}{}
	}
	opts := models.Options{Years: maps.Keys(years)}
	sort.Ints(opts.Years)

	if cs.Has(ColProvince) {
		inYear := ApplyFilters(cs, Selection{Year: year})
		opts.Provinces = distinct(cs.ProvinceDict, cs.ProvinceIDs, inYear)
	}
	if cs.Has(ColRegency) {
		scoped := ApplyFilters(cs, Selection{Year: year, Province: province})
		opts.Regencies = distinct(cs.RegencyDict, cs.RegencyIDs, scoped)
	}
	return opts
}

func distinct(dict []string, ids []int32, v View) []string {
	seen := make(map[string]struct{})
	for _, i := range v {
		seen[dict[ids[i]]] = struct{}{}
	}
	out := maps.Keys(seen)
	sort.Strings(out)
	return out
}

func ptr(f float64) *float64 { return &f }

// ComputeKPIs returns the national mean for the year (all provinces) and
// mean/min/max over the view. Null prevalence values are skipped. A nil
// year makes the national mean cover the whole dataset.
func ComputeKPIs(cs *ColumnStore, view View, year *int) models.KPIs {
	k := models.KPIs{Count: len(view)}

	national := cs.values(ApplyFilters(cs, Selection{Year: year}))
	if len(national) > 0 {
		k.NationalMean = ptr(stat.Mean(national, nil))
	}

	vals := cs.values(view)
	if len(vals) > 0 {
		k.FilteredMean = ptr(stat.Mean(vals, nil))
		k.FilteredMax = ptr(floats.Max(vals))
		k.FilteredMin = ptr(floats.Min(vals))
	}
	return k
}

// GroupKey selects the grouping column for GroupMean.
type GroupKey int

const (
	ByProvince GroupKey = iota
	ByRegency
	ByYear
)

type groupAcc struct {
	id    int32
	sum   float64
	count int
}

// GroupMean averages prevalence per group. Name groups come back sorted by
// mean, highest first, ties in first-seen order. Year groups come back in
// ascending year order. Groups without any non-null value are left out.
func GroupMean(cs *ColumnStore, view View, key GroupKey) []models.GroupMean {
	var ids []int32
	switch key {
	case ByProvince:
		ids = cs.ProvinceIDs
	case ByRegency:
		ids = cs.RegencyIDs
	default:
		ids = cs.Years
	}

	index := make(map[int32]int)
	accs := make([]groupAcc, 0)
	for _, i := range view {
		if !cs.Valid[i] {
			continue
		}
		g, ok := index[ids[i]]
		if !ok {
			g = len(accs)
			index[ids[i]] = g
			accs = append(accs, groupAcc{id: ids[i]})
		}
		accs[g].sum += cs.Prevalence[i]
		accs[g].count++
	}

	out := make([]models.GroupMean, len(accs))
	for g, a := range accs {
		var name string
		switch key {
		case ByProvince:
			name = cs.ProvinceDict[a.id]
		case ByRegency:
			name = cs.RegencyDict[a.id]
		default:
			name = strconv.Itoa(int(a.id))
		}
		out[g] = models.GroupMean{Key: name, Mean: a.sum / float64(a.count), Count: a.count}
	}

	if key == ByYear {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := strconv.Atoi(out[i].Key)
			b, _ := strconv.Atoi(out[j].Key)
			return a < b
		})
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mean > out[j].Mean })
	return out
}

// Direction of a ranking.
type Direction int

const (
	Top Direction = iota
	Bottom
)

// ParseDirection accepts "top"/"bottom" and the dashboard's own
// "tertinggi"/"terendah".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "top", "tertinggi":
		return Top, nil
	case "bottom", "terendah":
		return Bottom, nil
	}
	return Top, fmt.Errorf("unknown direction %q", s)
}

// Rank returns the n highest (Top) or lowest (Bottom) rows of the view by
// prevalence. Ties keep view order. Rows with null prevalence are not ranked.
func Rank(cs *ColumnStore, view View, dir Direction, n int) View {
	ranked := view.filter(func(i int) bool { return cs.Valid[i] })
	if dir == Top {
		sort.SliceStable(ranked, func(a, b int) bool { return cs.Prevalence[ranked[a]] > cs.Prevalence[ranked[b]] })
	} else {
		sort.SliceStable(ranked, func(a, b int) bool { return cs.Prevalence[ranked[a]] < cs.Prevalence[ranked[b]] })
	}
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// SortByPrevalence orders the whole view highest first.
func SortByPrevalence(cs *ColumnStore, view View) View {
	return Rank(cs, view, Top, -1)
}

// ClampRank bounds a requested ranking size to [5, max(5, min(50, size))].
func ClampRank(n, size int) int {
	hi := max(MinRank, min(MaxRank, size))
	return min(max(n, MinRank), hi)
}

// ClampBins bounds a histogram bin count; zero means the default.
func ClampBins(n int) int {
	if n == 0 {
		return DefaultBins
	}
	return min(max(n, MinBins), MaxBins)
}

// Histogram splits non-null prevalence values into equal-width bins
// between the view's min and max. The last bin is closed on the right.
func Histogram(cs *ColumnStore, view View, bins int) []models.Bin {
	vals := cs.values(view)
	if len(vals) == 0 {
		return nil
	}
	bins = ClampBins(bins)
	lo, hi := floats.Min(vals), floats.Max(vals)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	out := make([]models.Bin, bins)
	for b := range out {
		out[b].Lo = lo + float64(b)*width
		out[b].Hi = lo + float64(b+1)*width
	}
	out[bins-1].Hi = hi
	for _, v := range vals {
		b := int(math.Floor((v - lo) / width))
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		out[b].Count++
	}
	return out
}

// BoxSummary returns the five-number summary of the view, or nil when it
// has no values.
func BoxSummary(cs *ColumnStore, view View) *models.BoxSummary {
	vals := cs.values(view)
	if len(vals) == 0 {
		return nil
	}
	sort.Float64s(vals)
	return &models.BoxSummary{
		Min:    vals[0],
		Q1:     stat.Quantile(0.25, stat.Empirical, vals, nil),
		Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, vals, nil),
		Max:    vals[len(vals)-1],
		Count:  len(vals),
	}
}
