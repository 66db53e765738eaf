package api

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"

	"dashboard/internal/engine"
	"dashboard/internal/export"

	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"
)

const exportBase = "data_stunting_terfilter"

var contentTypes = map[string]string{
	"csv":   "text/csv; charset=utf-8",
	"xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"arrow": "application/vnd.apache.arrow.stream",
}

// viewETag identifies an export. The store never changes after load, so
// the row indices fix the data; the selection is mixed in because the
// xlsx summary sheet carries its label.
func viewETag(format string, sel engine.Selection, v engine.View) string {
	h := xxh3.New()
	_, _ = h.WriteString(format)
	_, _ = h.WriteString(sel.String())
	var b [8]byte
	for _, i := range v {
		binary.LittleEndian.PutUint64(b[:], uint64(i))
		_, _ = h.Write(b[:])
	}
	return fmt.Sprintf(`"%016x"`, h.Sum64())
}

// GetExport downloads the filtered view as csv, xlsx or arrow.
func (h *Handler) GetExport(c echo.Context) error {
	format := c.Param("format")
	ctype, ok := contentTypes[format]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown export format %q", format))
	}
	cs, sel, view, err := filtered(c)
	if err != nil {
		return err
	}
	if len(view) == 0 {
		return notice(c, MsgNoData)
	}

	etag := viewETag(format, sel, view)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}

	var buf bytes.Buffer
	switch format {
	case "csv":
		err = export.WriteCSV(&buf, cs, view)
	case "xlsx":
		k := engine.ComputeKPIs(cs, view, sel.Year)
		k.Label = sel.Label()
		err = export.WriteXLSX(&buf, cs, view, k)
	case "arrow":
		err = export.WriteArrow(&buf, cs, view)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}

	hdr := c.Response().Header()
	hdr.Set("ETag", etag)
	hdr.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.%s"`, exportBase, format))
	return c.Blob(http.StatusOK, ctype, buf.Bytes())
}
