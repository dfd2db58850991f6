package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"biblio/internal"
)

var exportHeaders = []string{
	"owner", "category", "author", "title", "language", "read", "kept", "publisher", "isbn",
}

// cleanHeaders is the layout read back by the clean profile.
var cleanHeaders = []string{
	"owner", "type", "auteur", "titre", "langue", "lu", "garde", "edition", "isbn",
}

const CleanSheetName = "bibliotheque"

func exportRow(rec internal.BookRecord) []string {
	return []string{
		rec.Owner, rec.Category, rec.Author, rec.Title, rec.Language,
		flag(rec.Read), flag(rec.Kept), rec.Publisher, rec.ISBN,
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func ExportCSV(w io.Writer, records []internal.BookRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(exportRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportXLSX(records []internal.BookRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, rec := range records {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, rec.Owner)
		set(2, rec.Category)
		set(3, rec.Author)
		set(4, rec.Title)
		set(5, rec.Language)
		set(6, boolCell(rec.Read))
		set(7, boolCell(rec.Kept))
		set(8, rec.Publisher)
		set(9, rec.ISBN)
	}

	return save(f, outputPath)
}

func boolCell(b bool) int {
	if b {
		return 1
	}
	return 0
}

// WriteCleanWorkbook writes records as a single "bibliotheque" sheet with
// one header row, the normalised layout of the historical converter.
func WriteCleanWorkbook(records []internal.BookRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), CleanSheetName); err != nil {
		return err
	}

	header := make([]any, len(cleanHeaders))
	for i, h := range cleanHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(CleanSheetName, "A1", &header); err != nil {
		return err
	}
	for i, rec := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			rec.Owner, rec.Category, rec.Author, rec.Title, rec.Language,
			rec.Read, rec.Kept, rec.Publisher, rec.ISBN,
		}
		if err := f.SetSheetRow(CleanSheetName, cell, &row); err != nil {
			return err
		}
	}

	return save(f, outputPath)
}

// CopySheets writes the given raw sheets, values only, into a new workbook.
func CopySheets(sheets []RawSheet, outputPath string) error {
	if len(sheets) == 0 {
		return fmt.Errorf("copy sheets: %w", ErrSheetNotFound)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		name := sheetName(s.Name, i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}

		for r, row := range s.Rows {
			if len(row) == 0 {
				continue
			}
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = v
			}
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return err
			}
		}
	}

	return save(f, outputPath)
}

// sheetName keeps a name excel accepts: at most 31 characters, none of
// []:*?/\.
func sheetName(name string, i int) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}

func save(f *excelize.File, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
