package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"dashboard/internal/chart"
	"dashboard/internal/engine"
	"dashboard/internal/models"

	"github.com/labstack/echo/v4"
)

// User-facing notices.
const (
	MsgNoData        = "Tidak ada data yang cocok dengan filter."
	MsgSingleYear    = "Data hanya mencakup satu tahun, tren per tahun tidak dapat ditampilkan."
	MsgMissingColumn = "Kolom %s tidak tersedia pada data."
	MsgLoading       = "Data sedang dimuat."
)

const storeKey = "store"

type Handler struct {
	store       atomic.Pointer[engine.ColumnStore]
	defaultBins int
}

// NewHandler builds a handler. A nil store is allowed: data endpoints
// answer 503 until SetData is called.
func NewHandler(store *engine.ColumnStore) *Handler {
	h := &Handler{defaultBins: engine.DefaultBins}
	if store != nil {
		h.store.Store(store)
	}
	return h
}

// SetData publishes the loaded dataset to all subsequent requests.
func (h *Handler) SetData(store *engine.ColumnStore) {
	h.store.Store(store)
}

func (h *Handler) SetDefaultBins(n int) {
	h.defaultBins = engine.ClampBins(n)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/options", h.GetOptions, h.requireData)
	api.GET("/records", h.GetRecords, h.requireData)
	api.GET("/kpis", h.GetKPIs, h.requireData)
	api.GET("/provinces/mean", h.GetProvinceMeans, h.requireData)
	api.GET("/years/mean", h.GetYearMeans, h.requireData)
	api.GET("/regencies", h.GetRegencies, h.requireData)
	api.GET("/rank", h.GetRank, h.requireData)
	api.GET("/histogram", h.GetHistogram, h.requireData)
	api.GET("/box", h.GetBox, h.requireData)
	api.GET("/charts/:kind", h.GetChart, h.requireData)
	api.GET("/export/:format", h.GetExport, h.requireData)
}

// requireData pins the current dataset on the request, or answers 503
// while it is still loading.
func (h *Handler) requireData(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cs := h.store.Load()
		if cs == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, MsgLoading)
		}
		c.Set(storeKey, cs)
		return next(c)
	}
}

func storeOf(c echo.Context) *engine.ColumnStore {
	return c.Get(storeKey).(*engine.ColumnStore)
}

// --- QUERY PARSING ---

func parseSelection(c echo.Context) (engine.Selection, error) {
	sel, err := engine.ParseSelection(c.QueryParam("year"), c.QueryParam("province"), c.QueryParam("regency"))
	if err != nil {
		return sel, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return sel, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, s))
	}
	return n, nil
}

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// filtered parses the selection and applies it.
func filtered(c echo.Context) (*engine.ColumnStore, engine.Selection, engine.View, error) {
	cs := storeOf(c)
	sel, err := parseSelection(c)
	if err != nil {
		return nil, sel, nil, err
	}
	return cs, sel, engine.ApplyFilters(cs, sel), nil
}

func notice(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.Notice{Empty: true, Message: msg})
}

// --- HANDLERS ---

func (h *Handler) Health(c echo.Context) error {
	cs := h.store.Load()
	if cs == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "rows": cs.Len()})
}

// GetOptions returns the cascaded dropdown values for year and province.
func (h *Handler) GetOptions(c echo.Context) error {
	sel, err := parseSelection(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engine.Candidates(storeOf(c), sel.Year, sel.Province))
}

func (h *Handler) GetRecords(c echo.Context) error {
	cs, _, view, err := filtered(c)
	if err != nil {
		return err
	}
	if len(view) == 0 {
		return notice(c, MsgNoData)
	}

	total := len(view)
	limit, offset := getPaginationParams(c, total)
	if offset >= total {
		return c.JSON(http.StatusOK, models.Page{Data: []models.Record{}, Total: total, Limit: limit, Offset: offset})
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return c.JSON(http.StatusOK, models.Page{
		Data:   cs.Records(view[offset:end]),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *Handler) GetKPIs(c echo.Context) error {
	cs, sel, view, err := filtered(c)
	if err != nil {
		return err
	}
	if len(view) == 0 {
		return notice(c, MsgNoData)
	}
	k := engine.ComputeKPIs(cs, view, sel.Year)
	k.Label = sel.Label()
	return c.JSON(http.StatusOK, k)
}

// provinceMeans groups the year-only view by province.
func provinceMeans(cs *engine.ColumnStore, sel engine.Selection) []models.GroupMean {
	return engine.GroupMean(cs, engine.ApplyFilters(cs, engine.Selection{Year: sel.Year}), engine.ByProvince)
}

// yearMeans groups the province-only view by year.
func yearMeans(cs *engine.ColumnStore, sel engine.Selection) []models.GroupMean {
	return engine.GroupMean(cs, engine.ApplyFilters(cs, engine.Selection{Province: sel.Province}), engine.ByYear)
}

func (h *Handler) GetProvinceMeans(c echo.Context) error {
	cs := storeOf(c)
	if !cs.Has(engine.ColProvince) {
		return notice(c, fmt.Sprintf(MsgMissingColumn, engine.ColProvince))
	}
	sel, err := parseSelection(c)
	if err != nil {
		return err
	}
	groups := provinceMeans(cs, sel)
	if len(groups) == 0 {
		return notice(c, MsgNoData)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetYearMeans(c echo.Context) error {
	cs := storeOf(c)
	sel, err := parseSelection(c)
	if err != nil {
		return err
	}
	groups := yearMeans(cs, sel)
	switch {
	case len(groups) == 0:
		return notice(c, MsgNoData)
	case len(groups) < 2:
		return notice(c, MsgSingleYear)
	}
	return c.JSON(http.StatusOK, groups)
}

// GetRegencies returns the whole filtered view, highest prevalence first.
func (h *Handler) GetRegencies(c echo.Context) error {
	cs, _, view, err := filtered(c)
	if err != nil {
		return err
	}
	if !cs.Has(engine.ColRegency) {
		return notice(c, fmt.Sprintf(MsgMissingColumn, engine.ColRegency))
	}
	if len(view) == 0 {
		return notice(c, MsgNoData)
	}
	return c.JSON(http.StatusOK, cs.Records(engine.SortByPrevalence(cs, view)))
}

func (h *Handler) GetRank(c echo.Context) error {
	cs, _, view, err := filtered(c)
	if err != nil {
		return err
	}
	dir, err := engine.ParseDirection(strings.ToLower(c.QueryParam("direction")))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := intParam(c, "n", 10)
	if err != nil {
		return err
	}
	if len(view) == 0 {
		return notice(c, MsgNoData)
	}
	n = engine.ClampRank(n, len(view))
	direction := "top"
	if dir == engine.Bottom {
		direction = "bottom"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"direction": direction,
		"n":         n,
		"data":      cs.Records(engine.Rank(cs, view, dir, n)),
	})
}

func (h *Handler) GetHistogram(c echo.Context) error {
	cs, _, view, err := filtered(c)
	if err != nil {
		return err
	}
	bins, err := intParam(c, "bins", h.defaultBins)
	if err != nil {
		return err
	}
	out := engine.Histogram(cs, view, bins)
	if len(out) == 0 {
		return notice(c, MsgNoData)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetBox(c echo.Context) error {
	cs, _, view, err := filtered(c)
	if err != nil {
		return err
	}
	box := engine.BoxSummary(cs, view)
	if box == nil {
		return notice(c, MsgNoData)
	}
	return c.JSON(http.StatusOK, box)
}

// GetChart renders one of chart.Kinds as PNG.
func (h *Handler) GetChart(c echo.Context) error {
	kind := strings.TrimSuffix(c.Param("kind"), ".png")
	if !slices.Contains(chart.Kinds, kind) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown chart %q", kind))
	}
	cs, sel, view, err := filtered(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch kind {
	case "provinces":
		if !cs.Has(engine.ColProvince) {
			return notice(c, fmt.Sprintf(MsgMissingColumn, engine.ColProvince))
		}
		title := "Rata-rata Stunting per Provinsi"
		if sel.Year != nil {
			title = fmt.Sprintf("%s (%d)", title, *sel.Year)
		}
		err = chart.ProvinceMeans(&buf, provinceMeans(cs, sel), title)
	case "regencies":
		err = chart.Regencies(&buf, cs.Records(engine.SortByPrevalence(cs, view)))
	case "trend":
		err = chart.Trend(&buf, yearMeans(cs, sel))
	case "histogram":
		bins, perr := intParam(c, "bins", h.defaultBins)
		if perr != nil {
			return perr
		}
		err = chart.Histogram(&buf, cs.Values(view), engine.ClampBins(bins))
	case "box":
		err = chart.Box(&buf, cs.Values(view))
	case "scatter":
		err = chart.Scatter(&buf, cs.Records(view))
	}

	switch {
	case errors.Is(err, chart.ErrEmpty):
		return notice(c, MsgNoData)
	case errors.Is(err, chart.ErrSingleYear):
		return notice(c, MsgSingleYear)
	case err != nil:
		return fmt.Errorf("render %s chart: %w", kind, err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}
