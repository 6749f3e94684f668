package batch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/audiojournal/internal/improve"
	"github.com/MrWong99/audiojournal/internal/journal"
)

// ErrNoPathColumn is returned when a manifest header has no path column.
var ErrNoPathColumn = errors.New("batch: manifest has no path column")

// manifestDateLayouts are the date renderings accepted in the date column
// besides the Excel serial number.
var manifestDateLayouts = []string{
	journal.DateLayout,
	"2006/01/02",
	"02.01.2006",
	"01-02-06",
	"1/2/06",
	"1/2/2006",
}

// IsManifest reports whether path names a manifest workbook.
func IsManifest(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// ReadManifest reads recordings from the first sheet of an .xlsx workbook.
// The first row is a header; columns are found by name: path, file or
// audio for the recording, date for the entry date and language or lang
// for the language hint. Language names and codes of the supported
// languages ("English", "UA", "uk-UA") become "en" or "uk"; any other value
// is dropped so the transcriber detects the language. Relative paths are resolved against the
// manifest's directory. Rows without a path are skipped.
func ReadManifest(path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("batch: manifest %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("batch: read manifest rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	pathIdx, dateIdx, langIdx := -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "path", "file", "audio":
			if pathIdx == -1 {
				pathIdx = i
			}
		case "date":
			dateIdx = i
		case "language", "lang":
			langIdx = i
		}
	}
	if pathIdx == -1 {
		return nil, ErrNoPathColumn
	}

	base := filepath.Dir(path)
	var items []Item
	for n, r := range rows[1:] {
		p := cell(r, pathIdx)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		item := Item{Path: p, Language: languageHint(cell(r, langIdx))}
		if raw := cell(r, dateIdx); raw != "" {
			d, err := parseManifestDate(raw)
			if err != nil {
				return nil, fmt.Errorf("batch: manifest row %d: %w", n+2, err)
			}
			item.Date = d
		}
		items = append(items, item)
	}
	return items, nil
}

func languageHint(raw string) string {
	if !improve.Supported(raw) {
		return ""
	}
	return string(improve.ParseLanguage(raw))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseManifestDate(raw string) (string, error) {
	for _, layout := range manifestDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(journal.DateLayout), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Format(journal.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", journal.ErrInvalidDate, raw)
}
