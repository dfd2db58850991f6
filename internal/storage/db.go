package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"biblio/internal"
)

// DB is the SQLite catalogue.
type DB struct {
	conn *sql.DB
	opts Options

	writeMu sync.Mutex
}

var _ Store = (*DB)(nil)

func OpenSQLite(path string, opts Options) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, opts: opts}
	if err := db.init(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT 'Livre',
  author TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  language TEXT NOT NULL DEFAULT '',
  read INTEGER NOT NULL DEFAULT 0,
  kept INTEGER NOT NULL DEFAULT 0,
  publisher TEXT NOT NULL DEFAULT '',
  isbn TEXT NOT NULL DEFAULT '',
  title_fold TEXT NOT NULL DEFAULT '',
  author_fold TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner);
CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);

CREATE TABLE IF NOT EXISTS imports (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  profile TEXT NOT NULL,
  wiped INTEGER NOT NULL DEFAULT 0,
  total INTEGER NOT NULL DEFAULT 0,
  inserted INTEGER NOT NULL DEFAULT 0,
  duplicates INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  report_json TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  message_id TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  status TEXT NOT NULL DEFAULT 'received',
  attempts INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, message_id)
);
`

func (d *DB) init(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return err
	}
	// mails tables created before claim counting lack the attempts column.
	if _, err := d.conn.ExecContext(ctx, `SELECT attempts FROM mails LIMIT 0`); err != nil {
		if _, err := d.conn.ExecContext(ctx, `ALTER TABLE mails ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	create, drop := dedupIndexes(d.opts.DedupWithCategory)
	if _, err := d.conn.ExecContext(ctx, drop); err != nil {
		return err
	}
	_, err := d.conn.ExecContext(ctx, create)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertBookSQL = `
INSERT INTO books (owner, category, author, title, language, read, kept, publisher, isbn, title_fold, author_fold)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`

func insertBook(ctx context.Context, e execer, rec internal.BookRecord) (bool, error) {
	result, err := e.ExecContext(ctx, insertBookSQL,
		rec.Owner, rec.Category, rec.Author, rec.Title, rec.Language,
		boolInt(rec.Read), boolInt(rec.Kept), rec.Publisher, rec.ISBN,
		fold(rec.Title), fold(rec.Author),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func wipeBooks(ctx context.Context, e execer) (int64, error) {
	result, err := e.ExecContext(ctx, `DELETE FROM books`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// retrySchema runs op, and on a missing table recreates the schema and runs
// it exactly once more.
func (d *DB) retrySchema(ctx context.Context, op func() error) error {
	err := op()
	if !isMissingTable(err) {
		return err
	}
	if ierr := d.init(ctx); ierr != nil {
		return errors.Join(err, ierr)
	}
	return op()
}

func (d *DB) InsertIfAbsent(ctx context.Context, rec internal.BookRecord) (bool, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var inserted bool
	err := d.retrySchema(ctx, func() error {
		var err error
		inserted, err = insertBook(ctx, d.conn, rec)
		return err
	})
	return inserted, err
}

func (d *DB) Wipe(ctx context.Context) (int64, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var n int64
	err := d.retrySchema(ctx, func() error {
		var err error
		n, err = wipeBooks(ctx, d.conn)
		return err
	})
	return n, err
}

type sqliteWriter struct {
	tx *sql.Tx
}

func (w sqliteWriter) InsertIfAbsent(ctx context.Context, rec internal.BookRecord) (bool, error) {
	return insertBook(ctx, w.tx, rec)
}

func (w sqliteWriter) Wipe(ctx context.Context) (int64, error) {
	return wipeBooks(ctx, w.tx)
}

func (d *DB) WithTx(ctx context.Context, fn func(w Writer) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	return d.retrySchema(ctx, func() error {
		tx, err := d.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(sqliteWriter{tx: tx}); err != nil {
			return err
		}
		return tx.Commit()
	})
}

const selectBooks = `
SELECT id, owner, category, author, title, language, read, kept, publisher, isbn, created_at
FROM books`

func (d *DB) Query(ctx context.Context, f Filter) ([]internal.BookRecord, error) {
	where, args := BuildQuery(f).SQL(func(int) string { return "?" })
	query := selectBooks + where + ` ORDER BY owner, author, title, category, id`

	var out []internal.BookRecord
	err := d.retrySchema(ctx, func() error {
		rows, err := d.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var rec internal.BookRecord
			if err := rows.Scan(
				&rec.ID, &rec.Owner, &rec.Category, &rec.Author, &rec.Title, &rec.Language,
				&rec.Read, &rec.Kept, &rec.Publisher, &rec.ISBN, &rec.CreatedAt,
			); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

func (d *DB) Stats(ctx context.Context) (internal.CatalogStats, error) {
	stats := internal.CatalogStats{ByOwner: map[string]int{}, ByCategory: map[string]int{}}
	err := d.retrySchema(ctx, func() error {
		if err := d.conn.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(read), 0), COALESCE(SUM(kept), 0) FROM books`,
		).Scan(&stats.Total, &stats.Read, &stats.Kept); err != nil {
			return err
		}
		if err := d.countBy(ctx, "owner", stats.ByOwner); err != nil {
			return err
		}
		return d.countBy(ctx, "category", stats.ByCategory)
	})
	return stats, err
}

func (d *DB) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM books GROUP BY `+column)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func (d *DB) Distinct(ctx context.Context, field internal.Field) ([]string, error) {
	column, err := distinctColumn(field)
	if err != nil {
		return nil, err
	}

	var out []string
	err = d.retrySchema(ctx, func() error {
		rows, err := d.conn.QueryContext(ctx,
			`SELECT DISTINCT `+column+` FROM books WHERE `+column+` <> '' ORDER BY `+column)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, err
}

func (d *DB) RecordImport(ctx context.Context, summary internal.ImportSummary) error {
	reportJSON, err := json.Marshal(summary.Sheets)
	if err != nil {
		return err
	}
	total, inserted, duplicates, skipped := summary.Totals()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.retrySchema(ctx, func() error {
		_, err := d.conn.ExecContext(ctx, `
INSERT INTO imports (id, source, profile, wiped, total, inserted, duplicates, skipped, report_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID, summary.Source, summary.Profile, summary.Wiped,
			total, inserted, duplicates, skipped, string(reportJSON))
		return err
	})
}

const claimMailSQL = `
INSERT INTO mails (provider, message_id, subject, sender, status, attempts)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT(provider, message_id) DO UPDATE SET
  attempts = mails.attempts + 1,
  status = excluded.status,
  updated_at = CURRENT_TIMESTAMP
WHERE mails.status IN (?, ?) AND mails.attempts < ?`

func (d *DB) ClaimMail(ctx context.Context, provider, messageID, subject, sender string, maxAttempts int) (bool, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var claimed bool
	err := d.retrySchema(ctx, func() error {
		result, err := d.conn.ExecContext(ctx, claimMailSQL,
			provider, messageID, subject, sender, MailReceived,
			MailReceived, MailFailed, attemptLimit(maxAttempts))
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		claimed = n == 1
		return err
	})
	return claimed, err
}

func (d *DB) SetMailStatus(ctx context.Context, provider, messageID, status string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`UPDATE mails SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE provider = ? AND message_id = ?`,
		status, provider, messageID)
	return err
}
