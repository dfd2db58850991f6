package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"biblio/internal"
	"biblio/internal/config"
	"biblio/internal/connectors"
	"biblio/internal/listener"
	"biblio/internal/lookup"
	"biblio/internal/pipeline"
	"biblio/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "profiles":
		for _, name := range pipeline.BuiltinProfiles() {
			fmt.Println(name)
		}
		return
	case "lookup":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		isbn := fs.String("isbn", "", "ISBN-10 or ISBN-13")
		_ = fs.Parse(os.Args[2:])
		client, err := lookup.NewClient(cfg)
		must(err)
		meta, err := client.LookupISBN(ctx, *isbn)
		must(err)
		if meta == nil {
			must(fmt.Errorf("isbn %s not found", *isbn))
		}
		printMetadata(meta)
		return
	case "convert":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "input workbook (xlsx|csv|html)")
		profileName := fs.String("profile", cfg.ImportProfile, "profile name or .json path")
		out := fs.String("out", "", "output xlsx path (default OUTPUT_DIR/clean.xlsx)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		*out = outputPath(cfg, *out, "clean.xlsx")
		profile, err := pipeline.ResolveProfile(*profileName)
		must(err)
		wb, err := pipeline.OpenWorkbook(*file)
		must(err)
		recs, summary, err := pipeline.NewImportService(nil, cfg).Convert(wb, profile)
		mustImport(err)
		must(pipeline.WriteCleanWorkbook(recs, *out))
		printSummary(summary)
		fmt.Printf("converted %d records to %s\n", len(recs), *out)
		return
	case "sheets:extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "input workbook")
		names := fs.String("sheets", "", "comma separated sheet names (default: all)")
		out := fs.String("out", "", "output xlsx path (default OUTPUT_DIR/sheets.xlsx)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		*out = outputPath(cfg, *out, "sheets.xlsx")
		wb, err := pipeline.OpenWorkbook(*file)
		must(err)
		sheets := wb.Sheets
		if strings.TrimSpace(*names) != "" {
			sheets = nil
			for _, name := range strings.Split(*names, ",") {
				sheet, ok := wb.Sheet(strings.TrimSpace(name))
				if !ok {
					must(fmt.Errorf("%q: %w (have %s)", name, pipeline.ErrSheetNotFound, strings.Join(wb.SheetNames(), ", ")))
				}
				sheets = append(sheets, sheet)
			}
		}
		must(pipeline.CopySheets(sheets, *out))
		fmt.Printf("extracted %d sheets to %s\n", len(sheets), *out)
		return
	}

	db, err := storage.Open(ctx, cfg)
	must(err)
	defer db.Close()

	switch cmd {
	case "import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "input workbook (xlsx|csv|html)")
		profileName := fs.String("profile", cfg.ImportProfile, "profile name or .json path")
		wipe := fs.Bool("wipe", false, "delete the catalogue before importing")
		yes := fs.Bool("yes", false, "skip the wipe confirmation prompt")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		if *wipe && !*yes && !confirm(os.Stdin, os.Stdout, wipePrompt, "WIPE") {
			fmt.Println("aborted")
			return
		}
		profile, err := pipeline.ResolveProfile(*profileName)
		must(err)
		svc := pipeline.NewImportService(db, cfg)
		summary, err := svc.ImportFile(ctx, *file, profile, pipeline.ImportOptions{Wipe: *wipe})
		mustImport(err)
		printSummary(summary)
	case "search":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		filter := filterFlags(fs)
		format := fs.String("format", "table", "table|csv")
		_ = fs.Parse(os.Args[2:])
		recs, err := db.Query(ctx, *filter)
		must(err)
		switch *format {
		case "csv":
			must(pipeline.ExportCSV(os.Stdout, recs))
		case "table":
			printRecords(recs)
		default:
			must(fmt.Errorf("unknown format %q", *format))
		}
	case "stats":
		stats, err := db.Stats(ctx)
		must(err)
		fmt.Printf("total=%d read=%d kept=%d\n", stats.Total, stats.Read, stats.Kept)
		printCounts("owner", stats.ByOwner)
		printCounts("category", stats.ByCategory)
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		filter := filterFlags(fs)
		out := fs.String("out", "", "output path .csv|.xlsx (default OUTPUT_DIR/books.xlsx)")
		_ = fs.Parse(os.Args[2:])
		*out = outputPath(cfg, *out, "books.xlsx")
		recs, err := db.Query(ctx, *filter)
		must(err)
		switch strings.ToLower(filepath.Ext(*out)) {
		case ".xlsx":
			must(pipeline.ExportXLSX(recs, *out))
		case ".csv":
			must(os.MkdirAll(filepath.Dir(*out), 0o755))
			f, err := os.Create(*out)
			must(err)
			err = pipeline.ExportCSV(f, recs)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			must(err)
		default:
			must(fmt.Errorf("%s: %w", *out, pipeline.ErrUnsupportedFormat))
		}
		fmt.Printf("exported %d records to %s\n", len(recs), *out)
	case "add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		var rec internal.BookRecord
		fs.StringVar(&rec.Owner, "owner", cfg.DefaultOwner, "owner")
		fs.StringVar(&rec.Category, "category", cfg.DefaultCategory, "category")
		fs.StringVar(&rec.Author, "author", "", "author")
		fs.StringVar(&rec.Title, "title", "", "title")
		fs.StringVar(&rec.Language, "language", "", "language")
		fs.StringVar(&rec.Publisher, "publisher", "", "publisher")
		fs.StringVar(&rec.ISBN, "isbn", "", "ISBN-10 or ISBN-13")
		fs.BoolVar(&rec.Read, "read", false, "already read")
		fs.BoolVar(&rec.Kept, "kept", cfg.KeptDefault, "kept on the shelf")
		useLookup := fs.Bool("lookup", false, "pre-fill missing fields from the ISBN")
		_ = fs.Parse(os.Args[2:])

		var meta pipeline.MetadataLookup
		if *useLookup {
			client, err := lookup.NewClient(cfg)
			must(err)
			meta = client
		}
		svc := pipeline.NewImportService(db, cfg)
		saved, inserted, err := svc.AddRecord(ctx, rec, meta)
		must(err)
		if !inserted {
			fmt.Printf("already in catalogue: %s / %s / %s\n", saved.Owner, saved.Author, saved.Title)
			return
		}
		fmt.Printf("added %s / %s / %s (%s)\n", saved.Owner, saved.Author, saved.Title, saved.Category)
	case "wipe":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		yes := fs.Bool("yes", false, "skip the confirmation prompt")
		_ = fs.Parse(os.Args[2:])
		if !*yes && !confirm(os.Stdin, os.Stdout, wipePrompt, "WIPE") {
			fmt.Println("aborted")
			return
		}
		n, err := db.Wipe(ctx)
		must(err)
		fmt.Printf("wiped %d records\n", n)
	case "mail:import", "mail:listen":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		fs.StringVar(&cfg.MailListenerLabel, "label", cfg.MailListenerLabel, "mailbox/label")
		fs.IntVar(&cfg.MailListenerFetchMax, "max", cfg.MailListenerFetchMax, "max messages per cycle")
		profileName := fs.String("profile", cfg.MailListenerProfile, "profile name or .json path")
		_ = fs.Parse(os.Args[2:])
		profile, err := pipeline.ResolveProfile(*profileName)
		must(err)
		conn, err := connectors.NewConnector(cfg, *provider)
		must(err)
		svc := listener.NewService(db, cfg, conn, profile)
		if cmd == "mail:listen" {
			must(svc.Run(ctx))
			return
		}
		res, err := svc.RunOnce(ctx)
		must(err)
		fmt.Printf("mail import done provider=%s fetched=%d claimed=%d imported=%d failed=%d rejected=%d ignored=%d inserted=%d\n",
			*provider, res.Fetched, res.Claimed, res.Imported, res.Failed, res.Rejected, res.Ignored, res.Inserted)
	default:
		usage()
		os.Exit(1)
	}
}

const wipePrompt = "type WIPE to delete every record: "

// outputPath places a bare file name, or the default name when out is empty,
// under OUTPUT_DIR.
func outputPath(cfg config.Config, out, fallback string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		out = fallback
	}
	if filepath.IsAbs(out) || strings.ContainsRune(out, filepath.Separator) {
		return out
	}
	return filepath.Join(cfg.OutputDir, out)
}

func filterFlags(fs *flag.FlagSet) *storage.Filter {
	f := &storage.Filter{}
	fs.StringVar(&f.Text, "q", "", "text matched against title and author")
	fs.StringVar(&f.Owner, "owner", storage.All, "owner or ALL")
	fs.StringVar(&f.Category, "category", storage.All, "category or ALL")
	return f
}

func printSummary(summary internal.ImportSummary) {
	for _, sh := range summary.Sheets {
		if sh.Error != "" {
			fmt.Printf("sheet %q: %s\n", sh.Sheet, sh.Error)
			continue
		}
		fmt.Printf("sheet %q header=%d inserted=%d duplicates=%d skipped=%d total=%d\n",
			sh.Sheet, sh.HeaderRow, sh.Inserted, sh.Duplicates, sh.Skipped, sh.Total)
		for _, w := range sh.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, sk := range sh.Skips {
			fmt.Printf("  row %d skipped: %s\n", sk.Row, sk.Reason)
		}
	}
	total, inserted, duplicates, skipped := summary.Totals()
	if summary.Wiped > 0 {
		fmt.Printf("wiped=%d\n", summary.Wiped)
	}
	fmt.Printf("inserted=%d duplicates=%d skipped=%d total=%d\n", inserted, duplicates, skipped, total)
}

func printRecords(recs []internal.BookRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"owner", "category", "author", "title", "language", "read", "kept"})
	table.SetAutoWrapText(false)
	for _, rec := range recs {
		table.Append([]string{rec.Owner, rec.Category, rec.Author, rec.Title, rec.Language, yesNo(rec.Read), yesNo(rec.Kept)})
	}
	table.Render()
	fmt.Printf("%d records\n", len(recs))
}

func printCounts(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s=%q count=%d\n", label, k, counts[k])
	}
}

func printMetadata(meta *internal.BookMetadata) {
	fmt.Printf("isbn: %s\ntitle: %s\nauthors: %s\n", meta.ISBN, meta.Title, strings.Join(meta.Authors, ", "))
	if meta.Publisher != "" {
		fmt.Printf("publisher: %s\n", meta.Publisher)
	}
	if meta.Year != nil {
		fmt.Printf("year: %d\n", *meta.Year)
	}
	if meta.Language != "" {
		fmt.Printf("language: %s\n", meta.Language)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func confirm(in io.Reader, out io.Writer, prompt, word string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == word
}

func usage() {
	fmt.Println("usage: biblio <command>")
	fmt.Println("commands:")
	fmt.Println("  import --file=books.xlsx [--profile=keyword|clean|household|blocks|path.json] [--wipe [--yes]]")
	fmt.Println("  search [--q=text] [--owner=ALL] [--category=ALL] [--format=table|csv]")
	fmt.Println("  stats")
	fmt.Println("  export [--out=books.xlsx|books.csv] [--q=...] [--owner=...] [--category=...]")
	fmt.Println("  convert --file=books.xlsx --profile=household [--out=clean.xlsx]")
	fmt.Println("  sheets:extract --file=books.xlsx [--sheets=Livres,BD] [--out=sheets.xlsx]")
	fmt.Println("  add --owner=... --author=... --title=... [--category=...] [--isbn=... --lookup]")
	fmt.Println("  lookup --isbn=...")
	fmt.Println("  wipe [--yes]")
	fmt.Println("  mail:import --provider=gmail|imap [--label=INBOX] [--max=20] [--profile=clean]")
	fmt.Println("  mail:listen --provider=gmail|imap")
	fmt.Println("  profiles")
}

// mustImport reports the missing columns of an aborted import one per line.
func mustImport(err error) {
	var missing *pipeline.MissingColumnsError
	if errors.As(err, &missing) {
		fmt.Fprintf(os.Stderr, "import aborted, sheet %q is missing columns:\n", missing.Sheet)
		for _, f := range missing.Fields {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
	must(err)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
