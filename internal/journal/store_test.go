package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/newslett/ttsd/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Record{Outcome: OutcomeOK}); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records in ephemeral mode, got %d", len(records))
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	if err := s.Append(context.Background(), Record{
		TraceID:    "trace-1",
		Voice:      "af_heart",
		Speed:      1.0,
		TextChars:  11,
		Segments:   1,
		DurationMS: 42,
		Outcome:    OutcomeOK,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.clock = func() time.Time { return now.Add(time.Minute) }
	if err := s.Append(context.Background(), Record{
		TraceID: "trace-2",
		Outcome: OutcomeError,
		Detail:  "runner exploded",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].TraceID != "trace-2" {
		t.Fatalf("expected newest first, got %q", records[0].TraceID)
	}
	if records[1].Voice != "af_heart" || records[1].DurationMS != 42 {
		t.Fatalf("unexpected record: %+v", records[1])
	}
	if records[0].Detail != "runner exploded" {
		t.Fatalf("unexpected detail: %q", records[0].Detail)
	}
	if !records[1].CreatedAt.Equal(now) {
		t.Fatalf("created_at did not survive the round trip: got %v, want %v", records[1].CreatedAt, now)
	}
	if !records[0].CreatedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("created_at did not survive the round trip: got %v, want %v", records[0].CreatedAt, now.Add(time.Minute))
	}
}

func TestPrune(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Path:          filepath.Join(tmp, "journal.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxRecords:    1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{TraceID: "old", Outcome: OutcomeOK}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{TraceID: "new", Outcome: OutcomeOK}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after prune, got %d", len(records))
	}
	if records[0].TraceID != "new" {
		t.Fatalf("expected old record pruned, got %q", records[0].TraceID)
	}
}
