// Package store persists state that outlives a single pipeline run: the
// session registry queried by the status and sessions commands, a
// translation memory that lets re-runs and overlapping documents skip
// already-translated chunks, and the user glossary injected into prompts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/doctran/internal/session"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		target_language TEXT NOT NULL,
		model TEXT,
		stage TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		target_language TEXT NOT NULL,
		final_text TEXT NOT NULL,
		model TEXT,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, target_language)
	);

	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		target_language TEXT NOT NULL,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		context TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(target_language, source_term)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON translation_memory(source_text, target_language);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_glossary_lookup ON glossary(target_language);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- session registry ---

// SessionRecord is one row of the session registry.
type SessionRecord struct {
	ID             string
	SourceFile     string
	TargetLanguage string
	Model          string
	Stage          session.Stage
	Snapshot       session.Snapshot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SaveSession inserts or updates the registry row for a run. Called on
// every stage transition so status queries see live progress.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session, snap session.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source_file, target_language, model, stage, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET stage = excluded.stage, snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		sess.ID, sess.SourceFile, sess.TargetLanguage, sess.Model, string(snap.Stage), string(blob), sess.CreatedAt, time.Now())
	return err
}

// GetSession returns the registry row for a session ID.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	var stage, blob string
	var model sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_file, target_language, model, stage, snapshot, created_at, updated_at FROM sessions WHERE id = ?`,
		id).Scan(&rec.ID, &rec.SourceFile, &rec.TargetLanguage, &model, &stage, &blob, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Model = model.String
	rec.Stage = session.Stage(stage)
	if err := json.Unmarshal([]byte(blob), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for %s: %w", id, err)
	}
	return &rec, nil
}

// ListSessions returns registry rows ordered by most recently updated.
// limit <= 0 returns everything.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT id, source_file, target_language, model, stage, snapshot, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var stage, blob string
		var model sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SourceFile, &rec.TargetLanguage, &model, &stage, &blob, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Model = model.String
		rec.Stage = session.Stage(stage)
		if err := json.Unmarshal([]byte(blob), &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- translation memory ---

// GetMemory returns the remembered final text for a chunk, if any. Hits
// bump the usage counter.
func (s *Store) GetMemory(ctx context.Context, sourceText, targetLanguage string) (string, bool, error) {
	key := normalizeText(sourceText)

	var finalText string
	var invalidated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT final_text, invalidated FROM translation_memory WHERE source_text = ? AND target_language = ?`,
		key, targetLanguage).Scan(&finalText, &invalidated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND target_language = ?`,
		time.Now(), key, targetLanguage)
	return finalText, true, err
}

// SaveMemory remembers the final text for a chunk.
func (s *Store) SaveMemory(ctx context.Context, sourceText, targetLanguage, finalText, model string) error {
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, source_text, target_language, final_text, model, usage_count, invalidated, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(sourceText), targetLanguage, finalText, model, time.Now(), time.Now())
	return err
}

// InvalidateMemory keeps the row but excludes it from lookups.
func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// ClearMemory removes all translation memory entries and returns the count.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryStats summarises translation memory usage.
type MemoryStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

// MemoryStats returns summary statistics for the translation memory.
func (s *Store) MemoryStats(ctx context.Context) (*MemoryStats, error) {
	stats := &MemoryStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// --- glossary ---

// GlossaryEntry is one user-defined term for a target language.
type GlossaryEntry struct {
	ID         string
	TargetLang string
	SourceTerm string
	TargetTerm string
	Context    string
	CreatedAt  time.Time
}

// AddGlossaryTerm inserts or replaces a glossary entry.
func (s *Store) AddGlossaryTerm(ctx context.Context, targetLanguage, sourceTerm, targetTerm, termContext string) error {
	id := fmt.Sprintf("gl_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, target_language, source_term, target_term, context)
		 VALUES (?, ?, ?, ?, ?)`,
		id, targetLanguage, sourceTerm, targetTerm, termContext)
	return err
}

// GetGlossaryTerms returns the terms for a target language as a
// source-term to target-term map, ready to merge into the entity dictionary.
func (s *Store) GetGlossaryTerms(ctx context.Context, targetLanguage string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term FROM glossary WHERE target_language = ?`,
		targetLanguage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// ListGlossaryTerms returns glossary entries, optionally filtered by target
// language (empty string returns everything).
func (s *Store) ListGlossaryTerms(ctx context.Context, targetLanguage string) ([]GlossaryEntry, error) {
	query := `SELECT id, target_language, source_term, target_term, COALESCE(context, ''), created_at FROM glossary`
	var args []interface{}
	if targetLanguage != "" {
		query += ` WHERE target_language = ?`
		args = append(args, targetLanguage)
	}
	query += ` ORDER BY target_language, source_term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.Context, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by ID.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	return err
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// memory keys compare consistently across runs.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
