package pipeline

import (
	"errors"
	"strings"

	"biblio/internal"
	"biblio/internal/util"
)

const DefaultHeaderScan = 60

var ErrHeaderNotFound = errors.New("header row not found")

// LocateHeaderRow returns the first row within the scan window holding a
// non-empty cell that contains needle, both sides folded.
func LocateHeaderRow(sheet RawSheet, needle string, maxRows int) (int, bool) {
	if maxRows <= 0 {
		maxRows = DefaultHeaderScan
	}
	needle = util.Fold(needle)
	limit := min(maxRows, len(sheet.Rows))
	for i := 0; i < limit; i++ {
		for _, cell := range sheet.Rows[i] {
			folded := util.Fold(cell)
			if folded != "" && strings.Contains(folded, needle) {
				return i, true
			}
		}
	}
	return -1, false
}

// locateAny tries needles in order. Without needles the first non-empty row
// is the header.
func locateAny(sheet RawSheet, needles []string, maxRows int) (int, bool) {
	if len(needles) == 0 {
		return LocateHeaderRow(sheet, "", maxRows)
	}
	for _, needle := range needles {
		if row, ok := LocateHeaderRow(sheet, needle, maxRows); ok {
			return row, true
		}
	}
	return -1, false
}

// locateByKeywords returns the first row within the window where some cell
// matches a field keyword. It stands in for the needles when none matched,
// so a header missing its title column still resolves and reports what is
// missing.
func locateByKeywords(sheet RawSheet, keywords map[internal.Field]Keywords, maxRows int) (int, bool) {
	if maxRows <= 0 {
		maxRows = DefaultHeaderScan
	}
	limit := min(maxRows, len(sheet.Rows))
	for i := 0; i < limit; i++ {
		for _, cell := range sheet.Rows[i] {
			folded := util.Fold(cell)
			if folded == "" {
				continue
			}
			for _, kw := range keywords {
				if kw.Match(folded) {
					return i, true
				}
			}
		}
	}
	return -1, false
}
