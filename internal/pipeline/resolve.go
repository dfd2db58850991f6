package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"biblio/internal"
)

var ErrNoBlocks = errors.New("sheet plan has no usable block")

type specKind int

const (
	specPositional specKind = iota + 1
	specByHeader
)

// ColumnSpec says where a field lives: a fixed column index or a header name.
type ColumnSpec struct {
	kind   specKind
	Index  int
	Header string
}

func Positional(index int) ColumnSpec {
	return ColumnSpec{kind: specPositional, Index: index}
}

func ByHeader(name string) ColumnSpec {
	return ColumnSpec{kind: specByHeader, Header: name}
}

func (c ColumnSpec) resolve(t *Table) (int, bool) {
	switch c.kind {
	case specPositional:
		return c.Index, c.Index >= 0 && c.Index < t.Width()
	case specByHeader:
		for i, h := range t.Headers {
			if h == c.Header {
				return i, true
			}
		}
	}
	return -1, false
}

// Columns maps a canonical field to a column index of the table.
type Columns map[internal.Field]int

func (c Columns) Has(f internal.Field) bool {
	_, ok := c[f]
	return ok
}

// Block is one owner's slice of a sheet, ready for extraction. An empty
// Owner means the owner comes from the owner column.
type Block struct {
	Owner    string
	Category string
	Columns  Columns
}

type Keywords struct {
	Equals   []string `json:"equals,omitempty"`
	Contains []string `json:"contains,omitempty"`
}

func (k Keywords) Match(header string) bool {
	for _, kw := range k.Equals {
		if header == kw {
			return true
		}
	}
	for _, kw := range k.Contains {
		if strings.Contains(header, kw) {
			return true
		}
	}
	return false
}

var DefaultKeywords = map[internal.Field]Keywords{
	internal.FieldTitle:     {Contains: []string{"titre", "title"}},
	internal.FieldAuthor:    {Contains: []string{"auteur", "author"}},
	internal.FieldOwner:     {Contains: []string{"proprio", "propriétaire", "owner"}},
	internal.FieldCategory:  {Contains: []string{"type", "format", "catégorie", "categorie", "category"}},
	internal.FieldISBN:      {Contains: []string{"isbn", "ean"}},
	internal.FieldPublisher: {Contains: []string{"edition", "édition", "éditeur", "editeur", "publisher"}},
	internal.FieldKept:      {Contains: []string{"gard", "kept", "keep"}},
	internal.FieldRead:      {Equals: []string{"lu", "read"}},
	internal.FieldLanguage:  {Contains: []string{"langue", "lang", "eng", "fr"}},
}

// resolveOrder is also the claim priority: a column taken by an earlier
// field is not offered to later ones.
var resolveOrder = []internal.Field{
	internal.FieldTitle,
	internal.FieldAuthor,
	internal.FieldOwner,
	internal.FieldCategory,
	internal.FieldISBN,
	internal.FieldPublisher,
	internal.FieldKept,
	internal.FieldRead,
	internal.FieldLanguage,
}

type MissingColumnsError struct {
	Sheet  string
	Fields []internal.Field
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, string(f))
	}
	return fmt.Sprintf("sheet %q: missing required columns: %s", e.Sheet, strings.Join(names, ", "))
}

// KeywordSpecs maps each field to the first matching header among the
// columns of the given header occurrence.
func KeywordSpecs(t *Table, occurrence int, keywords map[internal.Field]Keywords) map[internal.Field]ColumnSpec {
	specs := map[internal.Field]ColumnSpec{}
	claimed := map[int]bool{}
	for _, field := range resolveOrder {
		kw, ok := keywords[field]
		if !ok {
			continue
		}
		for i, base := range t.Base {
			if claimed[i] || t.Occurrence[i] != occurrence {
				continue
			}
			if kw.Match(base) {
				specs[field] = ByHeader(t.Headers[i])
				claimed[i] = true
				break
			}
		}
	}
	return specs
}

func PositionalSpecs(start int, fields []internal.Field) map[internal.Field]ColumnSpec {
	specs := make(map[internal.Field]ColumnSpec, len(fields))
	for i, f := range fields {
		specs[f] = Positional(start + i)
	}
	return specs
}

func (t *Table) Resolve(specs map[internal.Field]ColumnSpec) Columns {
	cols := Columns{}
	for f, spec := range specs {
		if idx, ok := spec.resolve(t); ok {
			cols[f] = idx
		}
	}
	return cols
}

type Resolution struct {
	Blocks   []Block
	Warnings []string
}

// ResolvePlan turns a sheet plan into concrete blocks. fallbackOwner is used
// when a keyword block has no static owner and no owner column.
func ResolvePlan(t *Table, plan SheetPlan, fallbackOwner string) (Resolution, error) {
	switch plan.Strategy {
	case StrategyPositional:
		return resolvePositional(t, plan)
	case StrategyKeyword, "":
		return resolveKeyword(t, plan, fallbackOwner)
	default:
		return Resolution{}, fmt.Errorf("sheet %q: unknown strategy %q", t.Sheet, plan.Strategy)
	}
}

func resolvePositional(t *Table, plan SheetPlan) (Resolution, error) {
	if len(plan.Blocks) == 0 {
		return Resolution{}, fmt.Errorf("sheet %q: %w", t.Sheet, ErrNoBlocks)
	}
	var res Resolution
	for _, ob := range plan.Blocks {
		end := ob.Start + len(ob.Fields)
		if t.Width() < end {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"block %s skipped: sheet has %d columns, block needs %d", ob.Owner, t.Width(), end))
			continue
		}
		res.Blocks = append(res.Blocks, Block{
			Owner:    ob.Owner,
			Category: ob.Category,
			Columns:  t.Resolve(PositionalSpecs(ob.Start, ob.Fields)),
		})
	}
	return res, nil
}

func resolveKeyword(t *Table, plan SheetPlan, fallbackOwner string) (Resolution, error) {
	keywords := planKeywords(plan)

	blocks := plan.Blocks
	if len(blocks) == 0 {
		blocks = []OwnerBlock{{}}
	}

	var (
		res     Resolution
		missing []internal.Field
	)
	for _, ob := range blocks {
		specs := KeywordSpecs(t, ob.Occurrence, keywords)
		if ob.Owner != "" {
			delete(specs, internal.FieldOwner)
		}
		cols := t.Resolve(specs)

		owner := ob.Owner
		if owner == "" && !cols.Has(internal.FieldOwner) {
			owner = fallbackOwner
		}

		var blockMissing []internal.Field
		for _, f := range []internal.Field{internal.FieldOwner, internal.FieldAuthor, internal.FieldTitle} {
			if f == internal.FieldOwner && owner != "" {
				continue
			}
			if !cols.Has(f) {
				blockMissing = append(blockMissing, f)
			}
		}
		if len(blockMissing) > 0 {
			if ob.Optional {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"block %s not detected (occurrence %d)", blockLabel(ob), ob.Occurrence))
				continue
			}
			missing = appendMissing(missing, blockMissing...)
			continue
		}

		res.Blocks = append(res.Blocks, Block{Owner: owner, Category: ob.Category, Columns: cols})
	}

	if len(missing) > 0 {
		return Resolution{}, &MissingColumnsError{Sheet: t.Sheet, Fields: missing}
	}
	return res, nil
}

// planKeywords overlays the plan's keywords on the defaults.
func planKeywords(plan SheetPlan) map[internal.Field]Keywords {
	if len(plan.Keywords) == 0 {
		return DefaultKeywords
	}
	keywords := make(map[internal.Field]Keywords, len(DefaultKeywords))
	for f, kw := range DefaultKeywords {
		keywords[f] = kw
	}
	for f, kw := range plan.Keywords {
		keywords[f] = kw
	}
	return keywords
}

func appendMissing(dst []internal.Field, fields ...internal.Field) []internal.Field {
	for _, f := range fields {
		dup := false
		for _, have := range dst {
			if have == f {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, f)
		}
	}
	return dst
}

func blockLabel(ob OwnerBlock) string {
	if ob.Owner != "" {
		return ob.Owner
	}
	return "owner-column"
}
