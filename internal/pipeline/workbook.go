package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"biblio/internal/util"
)

var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// RawSheet is an untyped grid as read from the file. The header row is not
// necessarily the first one.
type RawSheet struct {
	Name string
	Rows [][]string
}

func (s RawSheet) Width() int {
	width := 0
	for _, row := range s.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

type Workbook struct {
	Name   string
	Sheets []RawSheet
}

func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// Sheet finds a sheet by exact name, then by folded name.
func (w *Workbook) Sheet(name string) (RawSheet, bool) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	folded := util.Fold(name)
	for _, s := range w.Sheets {
		if util.Fold(s.Name) == folded {
			return s, true
		}
	}
	return RawSheet{}, false
}

func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm", ".csv", ".tsv", ".txt", ".html", ".htm":
		return true
	default:
		return false
	}
}

func OpenWorkbook(path string) (*Workbook, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadWorkbook(filepath.Base(path), blob)
}

func ReadWorkbook(name string, content []byte) (*Workbook, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var (
		sheets []RawSheet
		err    error
	)
	switch ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		sheets, err = readXLSX(content)
	case ".csv", ".tsv", ".txt":
		sheets, err = readCSV(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), content)
	case ".html", ".htm":
		sheets, err = readHTML(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &Workbook{Name: name, Sheets: sheets}, nil
}

func readXLSX(content []byte) ([]RawSheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []RawSheet{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			log.Printf("workbook: skip sheet=%q err=%v", sheet, err)
			continue
		}
		out = append(out, RawSheet{Name: sheet, Rows: rows})
	}
	return out, nil
}

func readCSV(name string, content []byte) ([]RawSheet, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		// Excel on Windows saves CSV in the ANSI code page.
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(content)
		if err != nil {
			return nil, err
		}
		content = decoded
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = sniffDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return []RawSheet{{Name: name, Rows: rows}}, nil
}

const sniffLines = 20

// sniffDelimiter picks the candidate present on the most of the first lines,
// then the most frequent one. Banner lines above the header carry none and
// do not decide.
func sniffDelimiter(content []byte) rune {
	var lines [][]byte
	for _, line := range bytes.Split(content, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
		if len(lines) == sniffLines {
			break
		}
	}

	best, bestLines, bestTotal := ',', -1, -1
	for _, d := range []rune{',', ';', '\t'} {
		sep := []byte(string(d))
		present, total := 0, 0
		for _, line := range lines {
			if n := bytes.Count(line, sep); n > 0 {
				present++
				total += n
			}
		}
		if present > bestLines || (present == bestLines && total > bestTotal) {
			best, bestLines, bestTotal = d, present, total
		}
	}
	return best
}

func readHTML(content []byte) ([]RawSheet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	out := []RawSheet{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.Clean(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if len(rows) == 0 {
			return
		}

		name := strings.TrimSpace(table.Find("caption").First().Text())
		if name == "" {
			name, _ = table.Attr("id")
		}
		if name == "" {
			name = fmt.Sprintf("table%d", i+1)
		}
		out = append(out, RawSheet{Name: name, Rows: rows})
	})
	return out, nil
}

// Table is a RawSheet seen from a header row. Headers are folded; repeated
// names get ".1", ".2" suffixes and Occurrence records the repeat index.
type Table struct {
	Sheet      string
	HeaderRow  int
	Headers    []string
	Base       []string
	Occurrence []int
	Rows       [][]string
}

func (s RawSheet) Table(headerRow int) *Table {
	width := s.Width()
	t := &Table{
		Sheet:      s.Name,
		HeaderRow:  headerRow,
		Headers:    make([]string, width),
		Base:       make([]string, width),
		Occurrence: make([]int, width),
	}

	var header []string
	if headerRow >= 0 && headerRow < len(s.Rows) {
		header = s.Rows[headerRow]
		t.Rows = s.Rows[headerRow+1:]
	}

	seen := map[string]int{}
	for i := 0; i < width; i++ {
		base := ""
		if i < len(header) {
			base = util.Fold(header[i])
		}
		if base == "" {
			base = fmt.Sprintf("unnamed: %d", i)
		}
		n := seen[base]
		seen[base] = n + 1

		t.Base[i] = base
		t.Occurrence[i] = n
		t.Headers[i] = base
		if n > 0 {
			t.Headers[i] = fmt.Sprintf("%s.%d", base, n)
		}
	}
	return t
}

func (t *Table) Width() int {
	return len(t.Headers)
}

func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// RowNumber converts a data row index into the 1-based row number shown by
// spreadsheet applications.
func (t *Table) RowNumber(i int) int {
	return t.HeaderRow + i + 2
}
