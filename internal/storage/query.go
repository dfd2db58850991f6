package storage

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"biblio/internal"
)

// All is the filter sentinel meaning "no restriction".
const All = "ALL"

type Filter struct {
	Text     string
	Owner    string
	Category string
}

// Predicate is a compiled Filter. The zero value matches everything.
type Predicate struct {
	text     string
	owner    string
	category string
}

func BuildQuery(f Filter) Predicate {
	p := Predicate{text: fold(strings.TrimSpace(f.Text))}
	if !isAll(f.Owner) {
		p.owner = f.Owner
	}
	if !isAll(f.Category) {
		p.category = f.Category
	}
	return p
}

func isAll(v string) bool {
	return v == "" || v == All
}

// SQL renders a WHERE clause (with leading space) and its arguments.
// placeholder maps the 1-based argument position to the driver syntax.
func (p Predicate) SQL(placeholder func(n int) string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if p.text != "" {
		pattern := "%" + escapeLike(p.text) + "%"
		clauses = append(clauses, fmt.Sprintf(`(title_fold LIKE %s ESCAPE '\' OR author_fold LIKE %s ESCAPE '\')`,
			next(pattern), next(pattern)))
	}
	if p.owner != "" {
		clauses = append(clauses, "owner = "+next(p.owner))
	}
	if p.category != "" {
		clauses = append(clauses, "category = "+next(p.category))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Match evaluates the predicate in memory with the same semantics as SQL.
func (p Predicate) Match(rec internal.BookRecord) bool {
	if p.text != "" && !strings.Contains(fold(rec.Title), p.text) && !strings.Contains(fold(rec.Author), p.text) {
		return false
	}
	if p.owner != "" && rec.Owner != p.owner {
		return false
	}
	if p.category != "" && rec.Category != p.category {
		return false
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func compareRecords(a, b internal.BookRecord) int {
	return cmp.Or(
		strings.Compare(a.Owner, b.Owner),
		strings.Compare(a.Author, b.Author),
		strings.Compare(a.Title, b.Title),
		strings.Compare(a.Category, b.Category),
		cmp.Compare(a.ID, b.ID),
	)
}

// SortRecords orders records the way Query returns them.
func SortRecords(recs []internal.BookRecord) {
	slices.SortStableFunc(recs, compareRecords)
}
