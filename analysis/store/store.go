// Package store persists quotes, tag links and analysis runs in SQLite.
// The analysis engine itself stays I/O-free; the store is the caller-side
// collaborator the pipeline binaries share.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fieldnotehq/quote-loom/analysis"
)

// Store manages study persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the study database and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			text TEXT NOT NULL,
			section TEXT NOT NULL DEFAULT '',
			theme TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			intensity INTEGER NOT NULL,
			start_time REAL NOT NULL,
			segment_ordinal INTEGER NOT NULL DEFAULT -1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_session ON quotes(session_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS tag_links (
			quote_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			state TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (quote_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			result TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// UpsertQuotes inserts or replaces quotes by ID. Quotes without an ID get one.
func (s *Store) UpsertQuotes(ctx context.Context, quotes []analysis.Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert quotes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO quotes (
			id, session_id, participant_id, text, section, theme, sentiment,
			intensity, start_time, segment_ordinal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id,
			participant_id=excluded.participant_id,
			text=excluded.text,
			section=excluded.section,
			theme=excluded.theme,
			sentiment=excluded.sentiment,
			intensity=excluded.intensity,
			start_time=excluded.start_time,
			segment_ordinal=excluded.segment_ordinal`)
	if err != nil {
		return fmt.Errorf("prepare upsert quote: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			q.ID, q.SessionID, q.ParticipantID, q.Text, q.Section, q.Theme,
			q.Sentiment, q.Intensity, q.StartTime, q.SegmentOrdinal,
		); err != nil {
			return fmt.Errorf("upsert quote %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// ListQuotes returns every stored quote ordered by session then start time.
func (s *Store) ListQuotes(ctx context.Context) ([]analysis.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
			id, session_id, participant_id, text, section, theme, sentiment,
			intensity, start_time, segment_ordinal
		FROM quotes ORDER BY session_id, start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []analysis.Quote
	for rows.Next() {
		var q analysis.Quote
		if err := rows.Scan(
			&q.ID, &q.SessionID, &q.ParticipantID, &q.Text, &q.Section,
			&q.Theme, &q.Sentiment, &q.Intensity, &q.StartTime, &q.SegmentOrdinal,
		); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// UpsertTagLinks records machine proposals and researcher edits. A proposal
// never overwrites an accepted or rejected link; researcher states always win.
func (s *Store) UpsertTagLinks(ctx context.Context, links []analysis.TagLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tag links: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tag_links (quote_id, tag, state, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(quote_id, tag) DO UPDATE SET
			state=excluded.state,
			confidence=excluded.confidence
		WHERE excluded.state IN ('accepted', 'rejected') OR tag_links.state = 'proposed'`)
	if err != nil {
		return fmt.Errorf("prepare upsert tag link: %w", err)
	}
	defer stmt.Close()

	for _, l := range links {
		if l.QuoteID == "" || l.Tag == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, l.QuoteID, l.Tag, string(l.State), l.Confidence); err != nil {
			return fmt.Errorf("upsert tag link %s/%s: %w", l.QuoteID, l.Tag, err)
		}
	}
	return tx.Commit()
}

// SetTagState applies one researcher edit (accept or reject) to a link.
func (s *Store) SetTagState(ctx context.Context, quoteID, tag string, state analysis.TagState) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tag_links (quote_id, tag, state, confidence)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(quote_id, tag) DO UPDATE SET state=excluded.state`,
		quoteID, tag, string(state))
	if err != nil {
		return fmt.Errorf("set tag state %s/%s: %w", quoteID, tag, err)
	}
	return nil
}

// ListTagLinks returns every stored tag link ordered by quote then tag.
func (s *Store) ListTagLinks(ctx context.Context) ([]analysis.TagLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT quote_id, tag, state, confidence FROM tag_links ORDER BY quote_id, tag`)
	if err != nil {
		return nil, fmt.Errorf("list tag links: %w", err)
	}
	defer rows.Close()

	var links []analysis.TagLink
	for rows.Next() {
		var l analysis.TagLink
		var state string
		if err := rows.Scan(&l.QuoteID, &l.Tag, &state, &l.Confidence); err != nil {
			return nil, fmt.Errorf("scan tag link: %w", err)
		}
		l.State = analysis.TagState(state)
		links = append(links, l)
	}
	return links, rows.Err()
}

// RunRecord is one persisted analysis run.
type RunRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	CreatedAt string          `json:"created_at"`
	Result    json.RawMessage `json:"result"`
}

// SaveRun persists a serialized analysis result and returns the run ID.
func (s *Store) SaveRun(ctx context.Context, kind string, result analysis.Result) (string, error) {
	blob, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal analysis result: %w", err)
	}
	id := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, kind, created_at, result) VALUES (?, ?, ?, ?)`,
		id, kind, createdAt, string(blob),
	); err != nil {
		return "", fmt.Errorf("insert analysis run: %w", err)
	}
	return id, nil
}

// GetRun fetches one analysis run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, created_at, result FROM analysis_runs WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Kind, &rec.CreatedAt, &blob)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get analysis run %s: %w", id, err)
	}
	rec.Result = json.RawMessage(blob)
	return rec, nil
}

// ListRuns returns run metadata (without result blobs), newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, created_at FROM analysis_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
