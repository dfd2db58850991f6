package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var reLineBreaks = regexp.MustCompile(`\s*[\r\n]+\s*`)

// affirmative lists the folded cell values ToBool treats as true.
var affirmative = map[string]struct{}{
	"true": {},
	"1":    {},
	"x":    {},
	"yes":  {},
	"oui":  {},
	"vrai": {},
}

// Clean turns any cell value into a trimmed single-line string. Missing and
// NaN-like values become "". It never panics.
func Clean(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case *string:
		if t == nil {
			return ""
		}
		s = *t
	case []byte:
		s = string(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		s = strconv.FormatFloat(f, 'f', -1, 32)
	default:
		s = fmt.Sprint(t)
	}
	return normalizeCell(s)
}

func normalizeCell(s string) string {
	s = StripBOM(s)
	s = reLineBreaks.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ToBool reports whether the cell holds one of the affirmative tokens.
func ToBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	_, ok := affirmative[strings.ToLower(Clean(v))]
	return ok
}

func StripBOM(s string) string {
	return strings.ReplaceAll(s, "\ufeff", "")
}

// Fold is the comparison form used for headers and needles.
func Fold(s string) string {
	return strings.ToLower(Clean(s))
}

// IsBlank treats the literal "nan" left behind by spreadsheet exports as empty.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}

func IntPtr(v int) *int {
	return &v
}
