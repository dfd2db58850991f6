package pipeline

import (
	"context"
	"errors"
	"testing"

	"biblio/internal"
)

type fakeLookup struct {
	md    *internal.BookMetadata
	err   error
	calls int
}

func (f *fakeLookup) LookupISBN(_ context.Context, _ string) (*internal.BookMetadata, error) {
	f.calls++
	return f.md, f.err
}

func TestAddRecordPrefillsFromLookup(t *testing.T) {
	svc, db := newTestService(t)
	lookup := &fakeLookup{md: &internal.BookMetadata{
		ISBN:      "9782070368228",
		Title:     "L'Étranger",
		Authors:   []string{"Albert Camus"},
		Publisher: "Gallimard",
	}}

	rec, inserted, err := svc.AddRecord(context.Background(), internal.BookRecord{
		Owner: "CAROLE",
		ISBN:  "2-07-036822-X",
	}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted || lookup.calls != 1 {
		t.Fatalf("inserted=%v calls=%d", inserted, lookup.calls)
	}
	if rec.Title != "L'Étranger" || rec.Author != "Albert Camus" || rec.Publisher != "Gallimard" || rec.Category != "Livre" {
		t.Fatalf("rec=%+v", rec)
	}
	if rec.ISBN != "9782070368228" {
		t.Fatalf("isbn=%q", rec.ISBN)
	}

	_, inserted, err = svc.AddRecord(context.Background(), rec, nil)
	if err != nil || inserted {
		t.Fatalf("second add inserted=%v err=%v", inserted, err)
	}
	if countBooks(t, db) != 1 {
		t.Fatal("duplicate manual entry stored")
	}
}

func TestAddRecordValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.AddRecord(ctx, internal.BookRecord{Owner: "NILS", Title: "Tintin"}, nil)
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("missing author: err=%v", err)
	}

	_, _, err = svc.AddRecord(ctx, internal.BookRecord{Owner: "NILS", Title: "Tintin", Author: "Hergé", ISBN: "12345"}, nil)
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("bad isbn: err=%v", err)
	}
}

func TestAddRecordLookupFailureIsNotFatal(t *testing.T) {
	svc, _ := newTestService(t)
	lookup := &fakeLookup{err: errors.New("offline")}

	rec, inserted, err := svc.AddRecord(context.Background(), internal.BookRecord{
		Owner: "AXEL", Author: "Herbert", Title: "Dune", ISBN: "9780306406157",
	}, lookup)
	if err != nil || !inserted {
		t.Fatalf("inserted=%v err=%v", inserted, err)
	}
	if rec.Title != "Dune" {
		t.Fatalf("rec=%+v", rec)
	}
}
