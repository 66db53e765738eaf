package engine

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"dashboard/internal/logger"

	"golang.org/x/text/unicode/norm"
)

// --- 1. CELL PARSERS ---

// parseYear parses "2022" (or "2022.0" from spreadsheet exports) -> 2022
func parseYear(s string) (int32, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int32(f), true
}

// parsePrevalence parses "21.5" or "21,5". Empty and non-numeric cells are null.
func parsePrevalence(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// cleanName trims and NFC-normalises region names once at load time.
func cleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func sniffDelimiter(line []byte) rune {
	best, bestN := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// --- 2. MAIN LOADER ---

// Load reads the dataset file at path.
func Load(path string) (*ColumnStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read builds a ColumnStore from delimited text. Columns are matched by
// header name. The year and prevalence columns are required; the rest are
// optional and recorded in Header when present.
func Read(r io.Reader) (*ColumnStore, error) {
	start := time.Now()
	log := logger.WithComponent("loader")

	br := bufio.NewReaderSize(r, 64<<10)
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	head, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(head, '\n'); i != -1 {
		head = head[:i]
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	// A. Map header names to positions
	pos := map[string]int{}
	store := &ColumnStore{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := pos[name]; dup {
			continue
		}
		switch name {
		case ColYear, ColProvince, ColRegency, ColPrevalence, ColUnit, ColRegencyCode, ColProvinceCode:
			pos[name] = i
			store.Header = append(store.Header, name)
		}
	}
	for _, req := range []string{ColYear, ColPrevalence} {
		if _, ok := pos[req]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, req)
		}
	}
	for _, opt := range []string{ColProvince, ColRegency, ColUnit} {
		if _, ok := pos[opt]; !ok {
			log.Warn("optional column missing, dependent features disabled", "column", opt)
		}
	}

	cell := func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	provinces, regencies, units := newDict(), newDict(), newDict()
	_, hasProvCode := pos[ColProvinceCode]
	_, hasRegCode := pos[ColRegencyCode]

	// B. Row loop
	line, skipped := 1, 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		year, ok := parseYear(cell(rec, ColYear))
		if !ok {
			skipped++
			log.Debug("skipping row with bad year", "line", line, "value", cell(rec, ColYear))
			continue
		}
		v, valid := parsePrevalence(cell(rec, ColPrevalence))

		store.Years = append(store.Years, year)
		store.Prevalence = append(store.Prevalence, v)
		store.Valid = append(store.Valid, valid)
		store.ProvinceIDs = append(store.ProvinceIDs, provinces.id(cleanName(cell(rec, ColProvince))))
		store.RegencyIDs = append(store.RegencyIDs, regencies.id(cleanName(cell(rec, ColRegency))))
		store.UnitIDs = append(store.UnitIDs, units.id(strings.TrimSpace(cell(rec, ColUnit))))
		if hasProvCode {
			store.ProvinceCodes = append(store.ProvinceCodes, strings.TrimSpace(cell(rec, ColProvinceCode)))
		}
		if hasRegCode {
			store.RegencyCodes = append(store.RegencyCodes, strings.TrimSpace(cell(rec, ColRegencyCode)))
		}
	}

	store.ProvinceDict = provinces.list
	store.RegencyDict = regencies.list
	store.UnitDict = units.list
	if hasProvCode && store.ProvinceCodes == nil {
		store.ProvinceCodes = []string{}
	}
	if hasRegCode && store.RegencyCodes == nil {
		store.RegencyCodes = []string{}
	}

	if skipped > 0 {
		log.Warn("rows skipped during load", "skipped", skipped)
	}
	log.Info("dataset loaded",
		"rows", store.Len(),
		"provinces", len(store.ProvinceDict),
		"regencies", len(store.RegencyDict),
		"duration", time.Since(start).String(),
	)
	return store, nil
}
