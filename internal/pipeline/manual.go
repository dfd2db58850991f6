package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"biblio/internal"
	"biblio/internal/util"
)

var ErrInvalidRecord = errors.New("invalid record")

// MetadataLookup pre-fills manual entries from an ISBN. A nil result means
// the ISBN is unknown.
type MetadataLookup interface {
	LookupISBN(ctx context.Context, isbn string) (*internal.BookMetadata, error)
}

// AddRecord validates a hand-typed record like an imported row of a strict
// plan and inserts it. lookup may be nil.
func (s *ImportService) AddRecord(ctx context.Context, rec internal.BookRecord, lookup MetadataLookup) (internal.BookRecord, bool, error) {
	rec = internal.BookRecord{
		Owner:     util.Clean(rec.Owner),
		Category:  util.Clean(rec.Category),
		Author:    util.Clean(rec.Author),
		Title:     util.Clean(rec.Title),
		Language:  util.Clean(rec.Language),
		Read:      rec.Read,
		Kept:      rec.Kept,
		Publisher: util.Clean(rec.Publisher),
		ISBN:      util.Clean(rec.ISBN),
	}

	if rec.ISBN != "" {
		isbn, ok := util.CanonicalISBN(rec.ISBN)
		if !ok {
			return rec, false, fmt.Errorf("%w: isbn %q", ErrInvalidRecord, rec.ISBN)
		}
		rec.ISBN = isbn
		if lookup != nil {
			prefill(ctx, &rec, lookup)
		}
	}

	if rec.Owner == "" {
		rec.Owner = s.cfg.DefaultOwner
	}
	if rec.Category == "" {
		rec.Category = s.cfg.DefaultCategory
	}
	if rec.Category == "" {
		rec.Category = internal.DefaultCategory
	}

	var missing []string
	if rec.Owner == "" {
		missing = append(missing, string(internal.FieldOwner))
	}
	if rec.Author == "" {
		missing = append(missing, string(internal.FieldAuthor))
	}
	if rec.Title == "" {
		missing = append(missing, string(internal.FieldTitle))
	}
	if len(missing) > 0 {
		return rec, false, fmt.Errorf("%w: empty %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}

	inserted, err := s.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return rec, false, err
	}
	return rec, inserted, nil
}

func prefill(ctx context.Context, rec *internal.BookRecord, lookup MetadataLookup) {
	md, err := lookup.LookupISBN(ctx, rec.ISBN)
	if err != nil {
		log.Printf("add: lookup isbn=%s err=%v", rec.ISBN, err)
		return
	}
	if md == nil {
		log.Printf("add: lookup isbn=%s not found", rec.ISBN)
		return
	}
	if rec.Title == "" {
		rec.Title = util.Clean(md.Title)
	}
	if rec.Author == "" {
		rec.Author = util.Clean(strings.Join(md.Authors, ", "))
	}
	if rec.Publisher == "" {
		rec.Publisher = util.Clean(md.Publisher)
	}
	if rec.Language == "" {
		rec.Language = util.Clean(md.Language)
	}
}
