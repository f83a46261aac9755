// Package ledger keeps a SQLite history of every file the daemon processed.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome of processing one input file.
const (
	StatusTranscribed = "transcribed"
	StatusFailed      = "failed"
)

// Entry is one processed input file.
type Entry struct {
	ID         int64
	Language   string
	File       string
	Output     string
	Status     string
	Reason     string
	Text       string
	Dictionary bool
	Bytes      int64
	Elapsed    time.Duration
	CreatedAt  time.Time
}

// Stats summarizes the history of one language.
type Stats struct {
	Transcribed int64
	Failed      int64
	// Last is the most recent entry, nil when nothing was recorded yet.
	Last *Entry
}

// Ledger wraps the SQLite database. A Ledger opened with an empty path is
// ephemeral: writes are dropped and queries return nothing.
type Ledger struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates or opens the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return &Ledger{clock: time.Now}, nil
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	l := &Ledger{db: db, clock: time.Now}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    language TEXT NOT NULL,
    file TEXT NOT NULL,
    output TEXT,
    status TEXT NOT NULL,
    reason TEXT,
    text TEXT,
    dictionary INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_lang_id ON transcriptions(language, id);
`
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

// Ephemeral reports whether the ledger drops everything written to it.
func (l *Ledger) Ephemeral() bool {
	return l.db == nil
}

// Close releases underlying resources.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends an entry.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l.db == nil {
		return nil
	}
	if e.Status != StatusTranscribed && e.Status != StatusFailed {
		return fmt.Errorf("ledger: unknown status %q", e.Status)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO transcriptions(language, file, output, status, reason, text, dictionary, bytes, elapsed_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Language, e.File, e.Output, e.Status, e.Reason, e.Text, e.Dictionary, e.Bytes,
		e.Elapsed.Milliseconds(), e.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Stats returns totals and the latest entry for lang.
func (l *Ledger) Stats(ctx context.Context, lang string) (Stats, error) {
	var s Stats
	if l.db == nil {
		return s, nil
	}

	err := l.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM transcriptions WHERE language = ?`,
		StatusTranscribed, StatusFailed, lang).Scan(&s.Transcribed, &s.Failed)
	if err != nil {
		return s, err
	}

	recent, err := l.Recent(ctx, lang, 1)
	if err != nil {
		return s, err
	}
	if len(recent) > 0 {
		s.Last = &recent[0]
	}
	return s, nil
}

// Recent returns up to limit entries for lang, newest first.
func (l *Ledger) Recent(ctx context.Context, lang string, limit int) ([]Entry, error) {
	if l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, language, file, COALESCE(output, ''), status, COALESCE(reason, ''), COALESCE(text, ''),
		        dictionary, bytes, elapsed_ms, created_at
		 FROM transcriptions WHERE language = ? ORDER BY id DESC LIMIT ?`, lang, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			elapsedMs int64
			created   string
		)
		if err := rows.Scan(&e.ID, &e.Language, &e.File, &e.Output, &e.Status, &e.Reason, &e.Text,
			&e.Dictionary, &e.Bytes, &elapsedMs, &created); err != nil {
			return nil, err
		}
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
