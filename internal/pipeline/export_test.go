package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"biblio/internal"
)

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	err := ExportCSV(&buf, []internal.BookRecord{
		{Owner: "NILS", Category: "BD", Author: "Hergé", Title: "Tintin, au Tibet", Read: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "owner,category,author,title,language,read,kept,publisher,isbn\n" +
		"NILS,BD,Hergé,\"Tintin, au Tibet\",,1,0,,\n"
	if buf.String() != want {
		t.Fatalf("got %q", buf.String())
	}
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "books.xlsx")
	err := ExportXLSX([]internal.BookRecord{{Owner: "AXEL", Category: "Livre", Author: "Herbert", Title: "Dune", Kept: true}}, path)
	if err != nil {
		t.Fatal(err)
	}
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatal(err)
	}
	rows := wb.Sheets[0].Rows
	if len(rows) != 2 || rows[1][3] != "Dune" || rows[1][6] != "1" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestCopySheets(t *testing.T) {
	src := []RawSheet{
		{Name: "Livres", Rows: [][]string{{"Titre"}, {"Dune"}}},
		{Name: "BD: Nils/Axel", Rows: [][]string{{"BD titre"}, {"Gaston"}}},
	}
	path := filepath.Join(t.TempDir(), "extrait.xlsx")
	if err := CopySheets(src, path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatal(err)
	}
	names := wb.SheetNames()
	if len(names) != 2 || names[1] != "BD_ Nils_Axel" {
		t.Fatalf("names=%v", names)
	}
	if wb.Sheets[1].Rows[1][0] != "Gaston" {
		t.Fatalf("rows=%v", wb.Sheets[1].Rows)
	}
}
