package pipeline

import (
	"testing"

	"biblio/internal"
)

func resolveFor(t *testing.T, rows [][]string, plan SheetPlan) (*Table, []Block) {
	t.Helper()
	tbl := RawSheet{Name: "Feuil1", Rows: rows}.Table(0)
	res, err := ResolvePlan(tbl, plan, "")
	if err != nil {
		t.Fatal(err)
	}
	return tbl, res.Blocks
}

func TestExtractSkipsEmptyTitle(t *testing.T) {
	tbl, blocks := resolveFor(t, [][]string{
		{"Owner", "Titre", "Auteur"},
		{"NILS", "Tintin", "Hergé"},
		{"NILS", "", "X"},
	}, SheetPlan{})

	records, skips := Collect(Extract(tbl, blocks, ExtractOptions{KeptDefault: true}))
	if len(records) != 1 || len(skips) != 1 {
		t.Fatalf("records=%d skips=%d", len(records), len(skips))
	}
	got := records[0]
	if got.Owner != "NILS" || got.Title != "Tintin" || got.Author != "Hergé" || got.Category != internal.DefaultCategory {
		t.Fatalf("record=%+v", got)
	}
	if !got.Kept || got.Read {
		t.Fatalf("flags read=%v kept=%v", got.Read, got.Kept)
	}
	if skips[0].Row != 3 || skips[0].Reason != "empty title" {
		t.Fatalf("skip=%+v", skips[0])
	}
}

func TestExtractValueCleaning(t *testing.T) {
	tbl, blocks := resolveFor(t, [][]string{
		{"Proprio", "Type", "Titre", "Auteur", "Lu", "Garde", "ISBN"},
		{" CAROLE ", "", "L'Écume\r\ndes jours", "nan", "OUI", "0", ""},
		{"CAROLE", "BD", "NaN", "Vian", "x", "x", ""},
		{"CAROLE", "BD", "Blake", "Jacobs", "", "", "978-2-07-036822-8"},
		{"CAROLE", "BD", "Mortimer", "Jacobs", "", "", "123"},
		{"", "BD", "Sans proprio", "Anon", "", "", ""},
	}, SheetPlan{Category: "Roman"})

	records, skips := Collect(Extract(tbl, blocks, ExtractOptions{Category: "Roman"}))
	if len(records) != 3 {
		t.Fatalf("records=%+v", records)
	}
	first := records[0]
	if first.Owner != "CAROLE" || first.Title != "L'Écume des jours" || first.Author != "" {
		t.Fatalf("first=%+v", first)
	}
	if first.Category != "Roman" || !first.Read || first.Kept {
		t.Fatalf("first=%+v", first)
	}
	if records[1].ISBN != "9782070368228" || records[1].Category != "BD" {
		t.Fatalf("second=%+v", records[1])
	}

	if records[2].Title != "Mortimer" || records[2].ISBN != "" {
		t.Fatalf("bad isbn should be cleared, got %+v", records[2])
	}

	var warnings []string
	for res := range Extract(tbl, blocks, ExtractOptions{Category: "Roman"}) {
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}
	}
	if len(warnings) != 1 || warnings[0] != `row 5: invalid isbn "123" cleared` {
		t.Fatalf("warnings=%q", warnings)
	}

	reasons := map[string]bool{}
	for _, s := range skips {
		reasons[s.Reason] = true
	}
	if len(skips) != 2 {
		t.Fatalf("skips=%+v", skips)
	}
	for _, r := range []string{"empty title", "empty owner"} {
		if !reasons[r] {
			t.Fatalf("missing skip %q in %+v", r, skips)
		}
	}
}

func TestExtractStrictRequiresAuthor(t *testing.T) {
	tbl, blocks := resolveFor(t, [][]string{
		{"Owner", "Titre", "Auteur"},
		{"NILS", "Tintin", ""},
	}, SheetPlan{Strict: true})

	_, skips := Collect(Extract(tbl, blocks, ExtractOptions{Strict: true}))
	if len(skips) != 1 || skips[0].Reason != "empty author" || skips[0].Owner != "NILS" {
		t.Fatalf("skips=%+v", skips)
	}
}

func TestExtractBlockMajorOrder(t *testing.T) {
	tbl := RawSheet{Name: "Feuil1", Rows: [][]string{
		{"Auteur", "Titre", "Auteur", "Titre"},
		{"a1", "t1", "b1", "u1"},
		{"a2", "t2", "b2", "u2"},
	}}.Table(0)
	blocks := []Block{
		{Owner: "CAROLE", Columns: Columns{internal.FieldAuthor: 0, internal.FieldTitle: 1}},
		{Owner: "NILS", Columns: Columns{internal.FieldAuthor: 2, internal.FieldTitle: 3}},
	}

	var titles []string
	for res := range Extract(tbl, blocks, ExtractOptions{}) {
		titles = append(titles, res.Record.Title)
	}
	want := []string{"t1", "t2", "u1", "u2"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("titles=%v", titles)
		}
	}
}

func TestExtractStopsEarly(t *testing.T) {
	tbl := RawSheet{Name: "Feuil1", Rows: [][]string{{"Titre"}, {"a"}, {"b"}, {"c"}}}.Table(0)
	blocks := []Block{{Owner: "NILS", Columns: Columns{internal.FieldTitle: 0}}}

	n := 0
	for range Extract(tbl, blocks, ExtractOptions{}) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n=%d", n)
	}
}
