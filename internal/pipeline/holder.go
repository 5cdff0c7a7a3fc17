package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newslett/ttsd/internal/config"
)

// Holder owns the process-wide pipeline handle. It is constructed exactly
// once at startup; a failed initialization is recorded and never retried, and
// every subsequent synthesis call fails with ErrNotReady.
type Holder struct {
	cfg     config.PipelineConfig
	pipe    Pipeline
	initErr error
	logger  *slog.Logger
}

// NewHolder attempts to construct the pipeline for the configured language
// code. Initialization failure is not fatal: the holder stores the error and
// the service keeps running in a degraded state.
func NewHolder(cfg config.PipelineConfig, log *slog.Logger) *Holder {
	h := &Holder{
		cfg:    cfg,
		logger: log.With(slog.String("component", "pipeline")),
	}

	pipe, err := newPipeline(cfg)
	if err != nil {
		h.initErr = err
		h.logger.Error("pipeline initialization failed",
			slog.String("mode", cfg.Mode),
			slog.String("lang_code", cfg.LangCode),
			slog.String("error", err.Error()))
		return h
	}

	h.pipe = pipe
	h.logger.Info("pipeline initialized",
		slog.String("mode", cfg.Mode),
		slog.String("lang_code", cfg.LangCode),
		slog.Int("sample_rate", cfg.SampleRate))
	return h
}

func newPipeline(cfg config.PipelineConfig) (Pipeline, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockPipeline(cfg), nil
	case "exec":
		return NewExecPipeline(cfg)
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", cfg.Mode)
	}
}

// Ready reports whether a usable pipeline handle is stored.
func (h *Holder) Ready() bool { return h.pipe != nil }

// InitError returns the initialization failure, if any.
func (h *Holder) InitError() error { return h.initErr }

// Synthesize delegates to the underlying pipeline.
func (h *Holder) Synthesize(ctx context.Context, req Request) (<-chan Segment, <-chan error) {
	if h.pipe == nil {
		segments := make(chan Segment)
		errs := make(chan error, 1)
		close(segments)
		errs <- ErrNotReady
		close(errs)
		return segments, errs
	}
	return h.pipe.Synthesize(ctx, req)
}
