package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/newslett/ttsd/internal/config"
	_ "modernc.org/sqlite"
)

// Outcomes recorded per synthesis request.
const (
	OutcomeOK          = "ok"
	OutcomeEmptyText   = "empty_text"
	OutcomeUnavailable = "unavailable"
	OutcomeNoAudio     = "no_audio"
	OutcomeError       = "error"
)

// Record is one journaled synthesis request. Only metadata is stored; audio
// bytes are never persisted.
type Record struct {
	ID         int64
	TraceID    string
	Voice      string
	Speed      float64
	TextChars  int
	Segments   int
	DurationMS int64
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}

// Store wraps a SQLite-backed synthesis journal.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config. In ephemeral mode every
// operation is a no-op.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS syntheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id TEXT,
    voice TEXT,
    speed REAL,
    text_chars INTEGER,
    segments INTEGER,
    duration_ms INTEGER,
    outcome TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_syntheses_created ON syntheses(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one synthesis record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	// stored as RFC3339Nano text; the driver's default time.Time binding
	// writes a layout the read path could not parse back
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO syntheses(trace_id, voice, speed, text_chars, segments, duration_ms, outcome, detail, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.Voice, rec.Speed, rec.TextChars, rec.Segments, rec.DurationMS, rec.Outcome, rec.Detail,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListRecent retrieves up to limit records ordered newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, voice, speed, text_chars, segments, duration_ms, outcome, detail, created_at
		 FROM syntheses ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.TraceID, &r.Voice, &r.Speed, &r.TextChars, &r.Segments, &r.DurationMS, &r.Outcome, &r.Detail, &created); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		r.CreatedAt = ts
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune applies configured retention (called on startup).
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM syntheses WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM syntheses WHERE id IN (
			SELECT id FROM syntheses ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords)
		if err != nil {
			return err
		}
	}
	return nil
}
