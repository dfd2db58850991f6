package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

type sheetData struct {
	name string
	rows [][]any
}

func mkWorkbook(sheets ...sheetData) []byte {
	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			_ = f.SetSheetName(f.GetSheetName(0), s.name)
		} else {
			_, _ = f.NewSheet(s.name)
		}
		for r, row := range s.rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(s.name, cell, v)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func mkXLSX(rows [][]any) []byte {
	return mkWorkbook(sheetData{name: "Sheet1", rows: rows})
}

func TestReadWorkbookXLSX(t *testing.T) {
	blob := mkWorkbook(
		sheetData{name: "Livres", rows: [][]any{{"Titre", "Auteur"}, {"Dune", "Herbert"}}},
		sheetData{name: "BD", rows: [][]any{{"BD titre"}, {"Gaston", 12}}},
	)
	wb, err := ReadWorkbook("maison.xlsx", blob)
	if err != nil {
		t.Fatal(err)
	}
	names := wb.SheetNames()
	if len(names) != 2 || names[0] != "Livres" || names[1] != "BD" {
		t.Fatalf("names=%v", names)
	}
	bd, ok := wb.Sheet("bd")
	if !ok {
		t.Fatal("folded sheet lookup failed")
	}
	if bd.Width() != 2 || bd.Rows[1][1] != "12" {
		t.Fatalf("bd rows=%v", bd.Rows)
	}
}

func TestReadWorkbookCSV(t *testing.T) {
	blob := []byte("\xef\xbb\xbfowner;titre;auteur\nNILS;Tintin;Herg\xc3\xa9\n")
	wb, err := ReadWorkbook("export.csv", blob)
	if err != nil {
		t.Fatal(err)
	}
	sheet := wb.Sheets[0]
	if sheet.Name != "export" {
		t.Fatalf("name=%q", sheet.Name)
	}
	if sheet.Rows[0][0] != "owner" || sheet.Rows[1][2] != "Hergé" {
		t.Fatalf("rows=%v", sheet.Rows)
	}
}

func TestReadWorkbookCSVBannerLine(t *testing.T) {
	blob := []byte("Bibliothèque de la maison\nowner;auteur;titre;langue\nNILS;Hergé;Tintin au Tibet, tome 20;Fr\n")
	wb, err := ReadWorkbook("liste.csv", blob)
	if err != nil {
		t.Fatal(err)
	}
	rows := wb.Sheets[0].Rows
	if len(rows[1]) != 4 || len(rows[2]) != 4 {
		t.Fatalf("rows=%q", rows)
	}
	if rows[2][2] != "Tintin au Tibet, tome 20" {
		t.Fatalf("title=%q", rows[2][2])
	}
}

func TestSniffDelimiter(t *testing.T) {
	cases := map[string]rune{
		"a,b,c\n1,2,3\n":                 ',',
		"titre\tauteur\nDune\tHerbert\n": '\t',
		"Liste 2024\n\na;b\n1;2\n3;4\n":  ';',
		"seul\n":                         ',',
	}
	for in, want := range cases {
		if got := sniffDelimiter([]byte(in)); got != want {
			t.Fatalf("sniffDelimiter(%q)=%q want %q", in, got, want)
		}
	}
}

func TestReadWorkbookCSVWindows1252(t *testing.T) {
	blob := []byte("titre,auteur\n\xc9t\xe9,Camus\n")
	wb, err := ReadWorkbook("ancien.csv", blob)
	if err != nil {
		t.Fatal(err)
	}
	if got := wb.Sheets[0].Rows[1][0]; got != "Été" {
		t.Fatalf("got %q", got)
	}
}

func TestReadWorkbookHTML(t *testing.T) {
	html := `<html><body><table id="livres"><tr><th>Titre</th><th>Auteur</th></tr>
<tr><td>L'Amant</td><td>Duras
</td></tr></table></body></html>`
	wb, err := ReadWorkbook("liste.html", []byte(html))
	if err != nil {
		t.Fatal(err)
	}
	if len(wb.Sheets) != 1 || wb.Sheets[0].Name != "livres" {
		t.Fatalf("sheets=%v", wb.SheetNames())
	}
	if got := wb.Sheets[0].Rows[1][1]; got != "Duras" {
		t.Fatalf("got %q", got)
	}
}

func TestReadWorkbookRejectsXLS(t *testing.T) {
	_, err := ReadWorkbook("old.xls", []byte{0xd0, 0xcf})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
}

func TestTableDuplicateHeaders(t *testing.T) {
	sheet := RawSheet{Name: "Livres", Rows: [][]string{
		{"banner"},
		{"\ufeffAuteur", "Titre", "", "Auteur", "Titre"},
		{"Camus", "La Peste", "", "Hergé", "Tintin"},
	}}
	tbl := sheet.Table(1)
	want := []string{"auteur", "titre", "unnamed: 2", "auteur.1", "titre.1"}
	for i, h := range want {
		if tbl.Headers[i] != h {
			t.Fatalf("header %d=%q want %q", i, tbl.Headers[i], h)
		}
	}
	if tbl.Occurrence[3] != 1 || tbl.Base[3] != "auteur" {
		t.Fatalf("occurrence=%v base=%v", tbl.Occurrence, tbl.Base)
	}
	if len(tbl.Rows) != 1 || tbl.RowNumber(0) != 3 {
		t.Fatalf("rows=%d rowNumber=%d", len(tbl.Rows), tbl.RowNumber(0))
	}
	if tbl.Cell(0, 9) != "" {
		t.Fatal("out of range cell should be empty")
	}
}
