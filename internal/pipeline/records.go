package pipeline

import (
	"fmt"
	"iter"

	"biblio/internal"
	"biblio/internal/util"
)

type ExtractOptions struct {
	Category    string
	Strict      bool
	KeptDefault bool
}

// RowResult holds either a record or the reason the row was skipped.
// Warning notes an optional value that was dropped from an accepted record.
type RowResult struct {
	Record  internal.BookRecord
	Skip    *internal.SkipReason
	Warning string
}

func (r RowResult) OK() bool {
	return r.Skip == nil
}

// Extract walks the table block by block, top to bottom. The sequence is
// lazy; stopping early leaves the remaining rows untouched.
func Extract(t *Table, blocks []Block, opts ExtractOptions) iter.Seq[RowResult] {
	return func(yield func(RowResult) bool) {
		for _, b := range blocks {
			for i := range t.Rows {
				if !yield(extractRow(t, i, b, opts)) {
					return
				}
			}
		}
	}
}

// Collect folds an extraction into records and skips.
func Collect(seq iter.Seq[RowResult]) ([]internal.BookRecord, []internal.SkipReason) {
	var (
		records []internal.BookRecord
		skips   []internal.SkipReason
	)
	for res := range seq {
		if res.OK() {
			records = append(records, res.Record)
			continue
		}
		skips = append(skips, *res.Skip)
	}
	return records, skips
}

func extractRow(t *Table, i int, b Block, opts ExtractOptions) (res RowResult) {
	row := t.RowNumber(i)
	skip := func(owner, reason string) RowResult {
		return RowResult{Skip: &internal.SkipReason{Sheet: t.Sheet, Row: row, Owner: owner, Reason: reason}}
	}
	defer func() {
		if r := recover(); r != nil {
			res = skip(b.Owner, fmt.Sprintf("row error: %v", r))
		}
	}()

	get := func(f internal.Field) string {
		idx, ok := b.Columns[f]
		if !ok {
			return ""
		}
		v := util.Clean(t.Cell(i, idx))
		if util.IsBlank(v) {
			return ""
		}
		return v
	}
	flag := func(f internal.Field, fallback bool) bool {
		idx, ok := b.Columns[f]
		if !ok {
			return fallback
		}
		return util.ToBool(t.Cell(i, idx))
	}

	owner := get(internal.FieldOwner)
	if owner == "" {
		owner = b.Owner
	}
	title := get(internal.FieldTitle)
	author := get(internal.FieldAuthor)

	switch {
	case title == "":
		return skip(owner, "empty title")
	case opts.Strict && author == "":
		return skip(owner, "empty author")
	case owner == "":
		return skip(owner, "empty owner")
	}

	category := get(internal.FieldCategory)
	if category == "" {
		category = b.Category
	}
	if category == "" {
		category = opts.Category
	}
	if category == "" {
		category = internal.DefaultCategory
	}

	var isbn, warning string
	if raw := get(internal.FieldISBN); raw != "" {
		canonical, ok := util.CanonicalISBN(raw)
		if ok {
			isbn = canonical
		} else {
			warning = fmt.Sprintf("row %d: invalid isbn %q cleared", row, raw)
		}
	}

	return RowResult{Warning: warning, Record: internal.BookRecord{
		Owner:     owner,
		Category:  category,
		Author:    author,
		Title:     title,
		Language:  get(internal.FieldLanguage),
		Read:      flag(internal.FieldRead, false),
		Kept:      flag(internal.FieldKept, opts.KeptDefault),
		Publisher: get(internal.FieldPublisher),
		ISBN:      isbn,
	}}
}
