package internal

type Field string

const (
	FieldOwner     Field = "owner"
	FieldCategory  Field = "category"
	FieldAuthor    Field = "author"
	FieldTitle     Field = "title"
	FieldLanguage  Field = "language"
	FieldRead      Field = "read"
	FieldKept      Field = "kept"
	FieldPublisher Field = "publisher"
	FieldISBN      Field = "isbn"
)

const DefaultCategory = "Livre"

type BookRecord struct {
	ID        int64  `json:"id,omitempty"`
	Owner     string `json:"owner"`
	Category  string `json:"category"`
	Author    string `json:"author"`
	Title     string `json:"title"`
	Language  string `json:"language,omitempty"`
	Read      bool   `json:"read"`
	Kept      bool   `json:"kept"`
	Publisher string `json:"publisher,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type SkipReason struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Owner  string `json:"owner,omitempty"`
	Reason string `json:"reason"`
}

type SheetReport struct {
	Sheet      string       `json:"sheet"`
	HeaderRow  int          `json:"headerRow"`
	Total      int          `json:"total"`
	Inserted   int          `json:"inserted"`
	Duplicates int          `json:"duplicates"`
	Skipped    int          `json:"skipped"`
	Skips      []SkipReason `json:"skips,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type ImportSummary struct {
	RunID   string        `json:"runId"`
	Source  string        `json:"source"`
	Profile string        `json:"profile"`
	Wiped   int64         `json:"wiped"`
	Sheets  []SheetReport `json:"sheets"`
}

func (s ImportSummary) Totals() (total, inserted, duplicates, skipped int) {
	for _, sh := range s.Sheets {
		total += sh.Total
		inserted += sh.Inserted
		duplicates += sh.Duplicates
		skipped += sh.Skipped
	}
	return
}

type CatalogStats struct {
	Total      int            `json:"total"`
	Read       int            `json:"read"`
	Kept       int            `json:"kept"`
	ByOwner    map[string]int `json:"byOwner"`
	ByCategory map[string]int `json:"byCategory"`
}

// BookMetadata is what an ISBN lookup may pre-fill for a manual entry.
type BookMetadata struct {
	ISBN      string   `json:"isbn"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Publisher string   `json:"publisher,omitempty"`
	Year      *int     `json:"year,omitempty"`
	Language  string   `json:"language,omitempty"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
