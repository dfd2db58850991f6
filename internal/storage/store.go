package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"biblio/internal"
	"biblio/internal/config"
)

var ErrUnknownDriver = errors.New("unknown database driver")

const (
	MailReceived = "received"
	MailImported = "imported"
	MailFailed   = "failed"
	MailIgnored  = "ignored"
	// MailRejected marks a mail whose attachments can never import.
	MailRejected = "rejected"
)

// DefaultMailAttempts bounds how often a received or failed mail is claimed.
const DefaultMailAttempts = 3

// Writer is the mutating half of the store, also handed out inside a
// transaction.
type Writer interface {
	// InsertIfAbsent reports false when the dedup key already exists.
	InsertIfAbsent(ctx context.Context, rec internal.BookRecord) (bool, error)
	Wipe(ctx context.Context) (int64, error)
}

type Store interface {
	Writer

	// WithTx runs fn in one transaction. Writers are serialised; fn may run
	// a second time if the schema had to be recreated.
	WithTx(ctx context.Context, fn func(w Writer) error) error
	Query(ctx context.Context, f Filter) ([]internal.BookRecord, error)
	Stats(ctx context.Context) (internal.CatalogStats, error)
	Distinct(ctx context.Context, field internal.Field) ([]string, error)
	RecordImport(ctx context.Context, summary internal.ImportSummary) error
	// ClaimMail records a mail and reports whether it should be processed:
	// it is new, or still received or failed with fewer than maxAttempts
	// claims so far. Imported, ignored and rejected mails are never claimed.
	ClaimMail(ctx context.Context, provider, messageID, subject, sender string, maxAttempts int) (bool, error)
	SetMailStatus(ctx context.Context, provider, messageID, status string) error
	Close() error
}

type Options struct {
	DedupWithCategory bool
}

func Open(ctx context.Context, cfg config.Config) (Store, error) {
	opts := Options{DedupWithCategory: cfg.DedupWithCategory}
	switch strings.ToLower(cfg.DBDriver) {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(cfg.DBPath, opts)
	case "postgres", "postgresql", "pgx":
		if err := cfg.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return OpenPostgres(ctx, cfg.DatabaseURL, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.DBDriver)
	}
}

func dedupIndexes(withCategory bool) (create, drop string) {
	const (
		plain    = `CREATE UNIQUE INDEX IF NOT EXISTS idx_books_dedup ON books(owner, author, title)`
		category = `CREATE UNIQUE INDEX IF NOT EXISTS idx_books_dedup_category ON books(owner, category, author, title)`
	)
	if withCategory {
		return category, `DROP INDEX IF EXISTS idx_books_dedup`
	}
	return plain, `DROP INDEX IF EXISTS idx_books_dedup_category`
}

func distinctColumn(field internal.Field) (string, error) {
	switch field {
	case internal.FieldOwner, internal.FieldCategory, internal.FieldLanguage, internal.FieldAuthor:
		return string(field), nil
	default:
		return "", fmt.Errorf("distinct values not available for %q", field)
	}
}

func attemptLimit(n int) int {
	if n <= 0 {
		return DefaultMailAttempts
	}
	return n
}

func fold(s string) string {
	return strings.ToLower(s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
