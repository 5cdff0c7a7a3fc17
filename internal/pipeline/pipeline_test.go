package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/newslett/ttsd/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mockConfig() config.PipelineConfig {
	cfg := config.Default().Pipeline
	cfg.Mode = "mock"
	return cfg
}

func drain(t *testing.T, segments <-chan Segment, errs <-chan error) ([]Segment, error) {
	t.Helper()
	var out []Segment
	var synthErr error
	for segments != nil || errs != nil {
		select {
		case seg, ok := <-segments:
			if !ok {
				segments = nil
				continue
			}
			out = append(out, seg)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && synthErr == nil {
				synthErr = err
			}
		}
	}
	return out, synthErr
}

func TestHolderReady(t *testing.T) {
	h := NewHolder(mockConfig(), testLogger())
	if !h.Ready() {
		t.Fatal("expected holder to be ready in mock mode")
	}
	if h.InitError() != nil {
		t.Fatalf("unexpected init error: %v", h.InitError())
	}
}

func TestHolderUnavailable(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.Mode = "exec"
	cfg.Command = "definitely-not-a-real-runner-binary"

	h := NewHolder(cfg, testLogger())
	if h.Ready() {
		t.Fatal("expected holder to be unavailable")
	}
	if h.InitError() == nil {
		t.Fatal("expected init error to be recorded")
	}

	segments, errs := h.Synthesize(context.Background(), Request{Text: "hello"})
	out, err := drain(t, segments, errs)
	if len(out) != 0 {
		t.Fatalf("expected no segments, got %d", len(out))
	}
	if err != ErrNotReady {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestMockSingleChunk(t *testing.T) {
	h := NewHolder(mockConfig(), testLogger())
	segments, errs := h.Synthesize(context.Background(), Request{Text: "Hello world", Voice: "af_heart", Speed: 1.0})
	out, err := drain(t, segments, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(out))
	}
	if out[0].Graphemes != "Hello world" {
		t.Fatalf("unexpected graphemes: %q", out[0].Graphemes)
	}
	if len(out[0].PCM) == 0 {
		t.Fatal("expected non-empty pcm")
	}
}

func TestMockChunkOrder(t *testing.T) {
	h := NewHolder(mockConfig(), testLogger())

	segments, errs := h.Synthesize(context.Background(), Request{Text: "first\nsecond\n\nthird"})
	out, err := drain(t, segments, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(out))
	}
	for i, want := range []string{"first", "second", "third"} {
		if out[i].Graphemes != want {
			t.Fatalf("segment %d: expected %q, got %q", i, want, out[i].Graphemes)
		}
		if out[i].Index != i {
			t.Fatalf("segment %d: unexpected index %d", i, out[i].Index)
		}
	}

	// reordering the chunks must change the concatenated output
	forward := append(append(append([]byte{}, out[0].PCM...), out[1].PCM...), out[2].PCM...)
	reversed := append(append(append([]byte{}, out[2].PCM...), out[1].PCM...), out[0].PCM...)
	if bytes.Equal(forward, reversed) {
		t.Fatal("expected chunk order to be observable in output")
	}
}

func TestMockCancellation(t *testing.T) {
	h := NewHolder(mockConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	segments, errs := h.Synthesize(ctx, Request{Text: "a\nb\nc"})
	// the first chunk may race the cancellation; the stream must still
	// terminate and surface the context error once no receiver remains.
	_, err := drain(t, segments, errs)
	if err != nil && err != context.Canceled {
		t.Fatalf("unexpected error: %v", err)
	}
}
