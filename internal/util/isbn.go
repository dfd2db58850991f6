package util

import (
	"regexp"
	"strings"
)

var reISBNPrefix = regexp.MustCompile(`^ISBN(?:[- ]?1[03](?:\s*:|\s+)|\s*:?)`)

// NormalizeISBN keeps digits and a trailing X check digit. Scanner output such
// as "978-2-07-036822-8", "ISBN 2070368220" or "ISBN 13: 978..." reduces to
// its bare form.
func NormalizeISBN(raw string) string {
	raw = reISBNPrefix.ReplaceAllString(strings.ToUpper(Clean(raw)), "")

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidISBN checks length and check digit of a normalised ISBN-10 or ISBN-13/EAN-13.
func ValidISBN(isbn string) bool {
	switch len(isbn) {
	case 10:
		return validISBN10(isbn)
	case 13:
		return validISBN13(isbn)
	default:
		return false
	}
}

func validISBN10(isbn string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		c := isbn[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += v * (10 - i)
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := isbn[i]
		if c < '0' || c > '9' {
			return false
		}
		v := int(c - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}

// CanonicalISBN normalises raw and returns it as an ISBN-13. ok is false when
// the value is not a valid ISBN.
func CanonicalISBN(raw string) (string, bool) {
	isbn := NormalizeISBN(raw)
	if !ValidISBN(isbn) {
		return "", false
	}
	return ISBN10To13(isbn), true
}

// ISBN10To13 converts a valid ISBN-10 to its 978-prefixed ISBN-13. Other input
// is returned unchanged.
func ISBN10To13(isbn string) string {
	if len(isbn) != 10 || !validISBN10(isbn) {
		return isbn
	}
	body := "978" + isbn[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		v := int(body[i] - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}
