package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"biblio/internal"
)

// PG is the PostgreSQL catalogue.
type PG struct {
	pool *pgxpool.Pool
	opts Options

	writeMu sync.Mutex
}

var _ Store = (*PG)(nil)

func OpenPostgres(ctx context.Context, dsn string, opts Options) (*PG, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	pg := &PG{pool: pool, opts: opts}
	if err := pg.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}

func (p *PG) Close() error {
	p.pool.Close()
	return nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS books (
  id BIGSERIAL PRIMARY KEY,
  owner TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT 'Livre',
  author TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  language TEXT NOT NULL DEFAULT '',
  read BOOLEAN NOT NULL DEFAULT FALSE,
  kept BOOLEAN NOT NULL DEFAULT FALSE,
  publisher TEXT NOT NULL DEFAULT '',
  isbn TEXT NOT NULL DEFAULT '',
  title_fold TEXT NOT NULL DEFAULT '',
  author_fold TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner);
CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);

CREATE TABLE IF NOT EXISTS imports (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  profile TEXT NOT NULL,
  wiped BIGINT NOT NULL DEFAULT 0,
  total INTEGER NOT NULL DEFAULT 0,
  inserted INTEGER NOT NULL DEFAULT 0,
  duplicates INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  report_json JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mails (
  id BIGSERIAL PRIMARY KEY,
  provider TEXT NOT NULL,
  message_id TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  status TEXT NOT NULL DEFAULT 'received',
  attempts INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(provider, message_id)
);

ALTER TABLE mails ADD COLUMN IF NOT EXISTS attempts INTEGER NOT NULL DEFAULT 0;
`

func (p *PG) init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	create, drop := dedupIndexes(p.opts.DedupWithCategory)
	if _, err := p.pool.Exec(ctx, drop); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, create)
	return err
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const pgInsertBookSQL = `
INSERT INTO books (owner, category, author, title, language, read, kept, publisher, isbn, title_fold, author_fold)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING`

func pgInsertBook(ctx context.Context, e pgExecer, rec internal.BookRecord) (bool, error) {
	tag, err := e.Exec(ctx, pgInsertBookSQL,
		rec.Owner, rec.Category, rec.Author, rec.Title, rec.Language,
		rec.Read, rec.Kept, rec.Publisher, rec.ISBN,
		fold(rec.Title), fold(rec.Author),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func pgWipe(ctx context.Context, e pgExecer) (int64, error) {
	tag, err := e.Exec(ctx, `DELETE FROM books`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func (p *PG) retrySchema(ctx context.Context, op func() error) error {
	err := op()
	if !pgMissingTable(err) {
		return err
	}
	if ierr := p.init(ctx); ierr != nil {
		return errors.Join(err, ierr)
	}
	return op()
}

func (p *PG) InsertIfAbsent(ctx context.Context, rec internal.BookRecord) (bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var inserted bool
	err := p.retrySchema(ctx, func() error {
		var err error
		inserted, err = pgInsertBook(ctx, p.pool, rec)
		return err
	})
	return inserted, err
}

func (p *PG) Wipe(ctx context.Context) (int64, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var n int64
	err := p.retrySchema(ctx, func() error {
		var err error
		n, err = pgWipe(ctx, p.pool)
		return err
	})
	return n, err
}

type pgWriter struct {
	tx pgx.Tx
}

func (w pgWriter) InsertIfAbsent(ctx context.Context, rec internal.BookRecord) (bool, error) {
	return pgInsertBook(ctx, w.tx, rec)
}

func (w pgWriter) Wipe(ctx context.Context) (int64, error) {
	return pgWipe(ctx, w.tx)
}

func (p *PG) WithTx(ctx context.Context, fn func(w Writer) error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	return p.retrySchema(ctx, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(pgWriter{tx: tx}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

const pgSelectBooks = `
SELECT id, owner, category, author, title, language, read, kept, publisher, isbn,
       to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS')
FROM books`

func (p *PG) Query(ctx context.Context, f Filter) ([]internal.BookRecord, error) {
	where, args := BuildQuery(f).SQL(func(n int) string { return fmt.Sprintf("$%d", n) })
	query := pgSelectBooks + where +
		` ORDER BY owner COLLATE "C", author COLLATE "C", title COLLATE "C", category COLLATE "C", id`

	var out []internal.BookRecord
	err := p.retrySchema(ctx, func() error {
		rows, err := p.pool.Query(ctx, query, args...)
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

func (p *PG) Stats(ctx context.Context) (internal.CatalogStats, error) {
	stats := internal.CatalogStats{ByOwner: map[string]int{}, ByCategory: map[string]int{}}
	err := p.retrySchema(ctx, func() error {
		if err := p.pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE read), COUNT(*) FILTER (WHERE kept) FROM books`,
		).Scan(&stats.Total, &stats.Read, &stats.Kept); err != nil {
			return err
		}
		if err := p.countBy(ctx, "owner", stats.ByOwner); err != nil {
			return err
		}
		return p.countBy(ctx, "category", stats.ByCategory)
	})
	return stats, err
}

func (p *PG) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := p.pool.Query(ctx, `SELECT `+column+`, COUNT(*) FROM books GROUP BY `+column)
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

func (p *PG) Distinct(ctx context.Context, field internal.Field) ([]string, error) {
	column, err := distinctColumn(field)
	if err != nil {
		return nil, err
	}

	var out []string
	err = p.retrySchema(ctx, func() error {
		rows, err := p.pool.Query(ctx,
			`SELECT DISTINCT `+column+` FROM books WHERE `+column+` <> '' ORDER BY `+column+` COLLATE "C"`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return out, err
}

func (p *PG) RecordImport(ctx context.Context, summary internal.ImportSummary) error {
	reportJSON, err := json.Marshal(summary.Sheets)
	if err != nil {
		return err
	}
	total, inserted, duplicates, skipped := summary.Totals()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.retrySchema(ctx, func() error {
		_, err := p.pool.Exec(ctx, `
INSERT INTO imports (id, source, profile, wiped, total, inserted, duplicates, skipped, report_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)`,
			summary.RunID, summary.Source, summary.Profile, summary.Wiped,
			total, inserted, duplicates, skipped, string(reportJSON))
		return err
	})
}

const pgClaimMailSQL = `
INSERT INTO mails (provider, message_id, subject, sender, status, attempts)
VALUES ($1, $2, $3, $4, $5, 1)
ON CONFLICT (provider, message_id) DO UPDATE SET
  attempts = mails.attempts + 1,
  status = EXCLUDED.status,
  updated_at = now()
WHERE mails.status IN ($5, $6) AND mails.attempts < $7`

func (p *PG) ClaimMail(ctx context.Context, provider, messageID, subject, sender string, maxAttempts int) (bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var claimed bool
	err := p.retrySchema(ctx, func() error {
		tag, err := p.pool.Exec(ctx, pgClaimMailSQL,
			provider, messageID, subject, sender, MailReceived, MailFailed, attemptLimit(maxAttempts))
		if err != nil {
			return err
		}
		claimed = tag.RowsAffected() == 1
		return nil
	})
	return claimed, err
}

func (p *PG) SetMailStatus(ctx context.Context, provider, messageID, status string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err := p.pool.Exec(ctx,
		`UPDATE mails SET status = $1, updated_at = now() WHERE provider = $2 AND message_id = $3`,
		status, provider, messageID)
	return err
}
