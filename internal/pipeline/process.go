package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"biblio/internal"
	"biblio/internal/config"
	"biblio/internal/storage"
)

var ErrSheetNotFound = errors.New("sheet not found")

// IsStructural reports whether err comes from the file itself, so importing
// it again cannot succeed.
func IsStructural(err error) bool {
	var missing *MissingColumnsError
	return errors.As(err, &missing) ||
		errors.Is(err, ErrHeaderNotFound) ||
		errors.Is(err, ErrSheetNotFound) ||
		errors.Is(err, ErrNoBlocks) ||
		errors.Is(err, ErrUnsupportedFormat)
}

type ImportService struct {
	store storage.Store
	cfg   config.Config
}

func NewImportService(store storage.Store, cfg config.Config) *ImportService {
	return &ImportService{store: store, cfg: cfg}
}

type ImportOptions struct {
	Wipe bool
}

type sheetJob struct {
	report internal.SheetReport
	table  *Table
	blocks []Block
	opts   ExtractOptions
}

func (s *ImportService) ImportFile(ctx context.Context, path string, profile Profile, opts ImportOptions) (internal.ImportSummary, error) {
	wb, err := OpenWorkbook(path)
	if err != nil {
		return internal.ImportSummary{}, err
	}
	return s.ImportWorkbook(ctx, filepath.Base(path), wb, profile, opts)
}

// ImportWorkbook plans every sheet before touching the store, so a
// structural error leaves the catalogue unchanged. Rows are then inserted in
// a single transaction.
func (s *ImportService) ImportWorkbook(ctx context.Context, source string, wb *Workbook, profile Profile, opts ImportOptions) (internal.ImportSummary, error) {
	start := time.Now()
	summary := internal.ImportSummary{RunID: uuid.NewString(), Source: source, Profile: profile.Name}

	jobs, err := s.plan(wb, profile)
	if err != nil {
		return summary, err
	}

	err = s.store.WithTx(ctx, func(w storage.Writer) error {
		summary.Wiped = 0
		if opts.Wipe {
			n, err := w.Wipe(ctx)
			if err != nil {
				return fmt.Errorf("wipe: %w", err)
			}
			summary.Wiped = n
		}

		for i := range jobs {
			job := &jobs[i]
			resetCounts(&job.report)
			if job.table == nil {
				continue
			}
			for res := range Extract(job.table, job.blocks, job.opts) {
				if err := ctx.Err(); err != nil {
					return err
				}
				job.report.Total++
				if !res.OK() {
					job.report.Skipped++
					job.report.Skips = append(job.report.Skips, *res.Skip)
					continue
				}
				if res.Warning != "" {
					job.report.Warnings = append(job.report.Warnings, res.Warning)
				}
				inserted, err := w.InsertIfAbsent(ctx, res.Record)
				if err != nil {
					return fmt.Errorf("sheet %q row %q: %w", job.report.Sheet, res.Record.Title, err)
				}
				if inserted {
					job.report.Inserted++
				} else {
					job.report.Duplicates++
				}
			}
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("import %s: %w", source, err)
	}

	for _, job := range jobs {
		summary.Sheets = append(summary.Sheets, job.report)
	}
	if err := s.store.RecordImport(ctx, summary); err != nil {
		log.Printf("import: record run=%s err=%v", summary.RunID, err)
	}

	total, inserted, duplicates, skipped := summary.Totals()
	log.Printf("import: run=%s source=%q profile=%s wiped=%d total=%d inserted=%d duplicates=%d skipped=%d ms=%d",
		summary.RunID, source, profile.Name, summary.Wiped, total, inserted, duplicates, skipped, time.Since(start).Milliseconds())
	return summary, nil
}

func resetCounts(r *internal.SheetReport) {
	r.Total, r.Inserted, r.Duplicates, r.Skipped = 0, 0, 0, 0
	r.Skips = nil
}

// plan locates headers and resolves columns for every selected sheet. A
// MissingColumnsError aborts; a sheet without header row only fails itself.
func (s *ImportService) plan(wb *Workbook, profile Profile) ([]sheetJob, error) {
	var (
		jobs    []sheetJob
		planned int
		failed  []error
	)
	for _, sp := range profile.Sheets {
		sheets, err := selectSheets(wb, sp.Sheet)
		if err != nil {
			jobs = append(jobs, sheetJob{report: internal.SheetReport{Sheet: sp.Sheet, HeaderRow: -1, Error: err.Error()}})
			failed = append(failed, err)
			continue
		}

		for _, sheet := range sheets {
			report := internal.SheetReport{Sheet: sheet.Name, HeaderRow: -1}
			row, ok := locateAny(sheet, sp.Needles, s.cfg.HeaderScanRows)
			if !ok && sp.Strategy != StrategyPositional {
				row, ok = locateByKeywords(sheet, planKeywords(sp), s.cfg.HeaderScanRows)
			}
			if !ok {
				err := fmt.Errorf("sheet %q: %w", sheet.Name, ErrHeaderNotFound)
				report.Error = ErrHeaderNotFound.Error()
				log.Printf("import: sheet=%q needles=%v err=%v", sheet.Name, sp.Needles, ErrHeaderNotFound)
				jobs = append(jobs, sheetJob{report: report})
				failed = append(failed, err)
				continue
			}

			table := sheet.Table(row)
			res, err := ResolvePlan(table, sp, s.cfg.DefaultOwner)
			if err != nil {
				return nil, err
			}
			for _, w := range res.Warnings {
				log.Printf("import: sheet=%q warning=%q", sheet.Name, w)
			}

			report.HeaderRow = row + 1
			report.Warnings = res.Warnings
			category := sp.Category
			if category == "" {
				category = s.cfg.DefaultCategory
			}
			jobs = append(jobs, sheetJob{
				report: report,
				table:  table,
				blocks: res.Blocks,
				opts: ExtractOptions{
					Category:    category,
					Strict:      sp.Strict,
					KeptDefault: s.cfg.KeptDefault,
				},
			})
			planned++
		}
	}

	if planned == 0 {
		if len(failed) == 0 {
			return nil, fmt.Errorf("%s: %w", wb.Name, ErrHeaderNotFound)
		}
		return nil, fmt.Errorf("%s: nothing to import: %w", wb.Name, errors.Join(failed...))
	}
	return jobs, nil
}

func selectSheets(wb *Workbook, name string) ([]RawSheet, error) {
	switch name {
	case SheetAll:
		return wb.Sheets, nil
	case SheetFirst:
		if len(wb.Sheets) == 0 {
			return nil, fmt.Errorf("%s: %w", wb.Name, ErrSheetNotFound)
		}
		return wb.Sheets[:1], nil
	default:
		sheet, ok := wb.Sheet(name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrSheetNotFound)
		}
		return []RawSheet{sheet}, nil
	}
}

// Convert runs the same plan and extraction as an import without a store.
// Records repeating an earlier dedup key are counted as duplicates and
// dropped, so the output re-imports cleanly.
func (s *ImportService) Convert(wb *Workbook, profile Profile) ([]internal.BookRecord, internal.ImportSummary, error) {
	summary := internal.ImportSummary{Source: wb.Name, Profile: profile.Name}
	jobs, err := s.plan(wb, profile)
	if err != nil {
		return nil, summary, err
	}

	var (
		out  []internal.BookRecord
		seen = map[string]bool{}
	)
	for _, job := range jobs {
		if job.table != nil {
			for res := range Extract(job.table, job.blocks, job.opts) {
				job.report.Total++
				if !res.OK() {
					job.report.Skipped++
					job.report.Skips = append(job.report.Skips, *res.Skip)
					continue
				}
				if res.Warning != "" {
					job.report.Warnings = append(job.report.Warnings, res.Warning)
				}
				key := s.dedupKey(res.Record)
				if seen[key] {
					job.report.Duplicates++
					continue
				}
				seen[key] = true
				job.report.Inserted++
				out = append(out, res.Record)
			}
		}
		summary.Sheets = append(summary.Sheets, job.report)
	}
	return out, summary, nil
}

func (s *ImportService) dedupKey(rec internal.BookRecord) string {
	parts := []string{rec.Owner, rec.Author, rec.Title}
	if s.cfg.DedupWithCategory {
		parts = append(parts, rec.Category)
	}
	return strings.Join(parts, "\x00")
}
