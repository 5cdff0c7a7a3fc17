package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/newslett/ttsd/internal/config"
	"github.com/newslett/ttsd/internal/journal"
	"github.com/newslett/ttsd/internal/pipeline"
	"github.com/newslett/ttsd/internal/protocol"
	"github.com/newslett/ttsd/internal/wave"
)

const textPreviewChars = 50

type publisher interface {
	PublishSynthesisDone(protocol.SynthesisDone)
}

// API holds the request handlers and their dependencies. The pipeline holder
// is injected so tests can run against the mock pipeline.
type API struct {
	cfg     config.Config
	holder  *pipeline.Holder
	journal *journal.Store
	pub     publisher
	logger  *slog.Logger

	requests    metric.Int64Counter
	synthTime   metric.Float64Histogram
	modelLoaded metric.Int64ObservableGauge
}

func NewAPI(cfg config.Config, holder *pipeline.Holder, store *journal.Store, pub publisher, log *slog.Logger) *API {
	a := &API{
		cfg:     cfg,
		holder:  holder,
		journal: store,
		pub:     pub,
		logger:  log.With(slog.String("component", "api")),
	}
	a.initMetrics()
	return a
}

func (a *API) initMetrics() {
	meter := otel.Meter("github.com/newslett/ttsd/internal/runtime")

	var err error
	a.requests, err = meter.Int64Counter("ttsd.generate.requests",
		metric.WithDescription("Generate requests by outcome"))
	if err != nil {
		a.logger.Warn("failed to create request counter", slog.String("error", err.Error()))
	}
	a.synthTime, err = meter.Float64Histogram("ttsd.generate.duration",
		metric.WithDescription("Synthesis duration"),
		metric.WithUnit("s"))
	if err != nil {
		a.logger.Warn("failed to create duration histogram", slog.String("error", err.Error()))
	}
	a.modelLoaded, err = meter.Int64ObservableGauge("ttsd.model.loaded",
		metric.WithDescription("Whether the pipeline handle is usable"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var v int64
			if a.holder.Ready() {
				v = 1
			}
			o.Observe(v)
			return nil
		}))
	if err != nil {
		a.logger.Warn("failed to create model gauge", slog.String("error", err.Error()))
	}
}

// Routes registers the HTTP surface on a fresh mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/generate", a.handleGenerate)
	mux.HandleFunc("/history", a.handleHistory)
	return mux
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ModelLoaded: a.holder.Ready()})
}

type generateRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// defaults apply only when a field is absent from the body; explicit
	// values, zero included, pass through to the pipeline untouched
	req := generateRequest{
		Voice: a.cfg.Pipeline.DefaultVoice,
		Speed: a.cfg.Pipeline.DefaultSpeed,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	traceID := uuid.NewString()

	if !a.holder.Ready() {
		a.logger.Warn("generate rejected, pipeline unavailable", slog.String("trace_id", traceID))
		a.finish(traceID, req, 0, 0, journal.OutcomeUnavailable, "TTS Model not initialized")
		a.writeError(w, http.StatusServiceUnavailable, "TTS Model not initialized")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		a.logger.Warn("generate rejected, empty text", slog.String("trace_id", traceID))
		a.finish(traceID, req, 0, 0, journal.OutcomeEmptyText, "Text cannot be empty")
		a.writeError(w, http.StatusBadRequest, "Text cannot be empty")
		return
	}

	a.logger.Info("generating speech",
		slog.String("trace_id", traceID),
		slog.String("text_preview", preview(req.Text)),
		slog.String("voice", req.Voice),
		slog.Float64("speed", req.Speed))

	start := time.Now()
	segments, errs := a.holder.Synthesize(r.Context(), pipeline.Request{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
	})

	var pcm []byte
	count := 0
	var synthErr error
	for segments != nil || errs != nil {
		select {
		case seg, ok := <-segments:
			if !ok {
				segments = nil
				continue
			}
			pcm = append(pcm, seg.PCM...)
			count++
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
	elapsed := time.Since(start)

	if synthErr != nil {
		a.logger.Error("synthesis failed",
			slog.String("trace_id", traceID),
			slog.String("error", synthErr.Error()))
		a.finish(traceID, req, count, elapsed, journal.OutcomeError, synthErr.Error())
		a.writeError(w, http.StatusInternalServerError, synthErr.Error())
		return
	}

	if count == 0 {
		a.logger.Error("synthesis produced no audio", slog.String("trace_id", traceID))
		a.finish(traceID, req, 0, elapsed, journal.OutcomeNoAudio, "No audio generated")
		a.writeError(w, http.StatusInternalServerError, "No audio generated")
		return
	}

	body, err := wave.Encode(pcm, a.cfg.Pipeline.SampleRate, a.cfg.Pipeline.Channels)
	if err != nil {
		a.logger.Error("wav encoding failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()))
		a.finish(traceID, req, count, elapsed, journal.OutcomeError, err.Error())
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.Info("synthesis complete",
		slog.String("trace_id", traceID),
		slog.Int("segments", count),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", elapsed))
	a.finish(traceID, req, count, elapsed, journal.OutcomeOK, "")

	if a.pub != nil {
		a.pub.PublishSynthesisDone(protocol.SynthesisDone{
			TraceID:    traceID,
			NodeID:     a.cfg.Bus.NodeID,
			Voice:      req.Voice,
			Speed:      req.Speed,
			TextChars:  len(req.Text),
			Segments:   count,
			DurationMS: elapsed.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := a.journal.ListRecent(r.Context(), limit)
	if err != nil {
		a.logger.Error("history query failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			TraceID:    rec.TraceID,
			Voice:      rec.Voice,
			Speed:      rec.Speed,
			TextChars:  rec.TextChars,
			Segments:   rec.Segments,
			DurationMS: rec.DurationMS,
			Outcome:    rec.Outcome,
			Detail:     rec.Detail,
			CreatedAt:  rec.CreatedAt,
		})
	}
	a.writeJSON(w, http.StatusOK, entries)
}

type historyEntry struct {
	TraceID    string    `json:"trace_id"`
	Voice      string    `json:"voice"`
	Speed      float64   `json:"speed"`
	TextChars  int       `json:"text_chars"`
	Segments   int       `json:"segments"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// finish records metrics and the journal entry for one request. The journal
// write uses a background context: the request context may already be done
// by the time the response is committed.
func (a *API) finish(traceID string, req generateRequest, segments int, elapsed time.Duration, outcome, detail string) {
	ctx := context.Background()
	if a.requests != nil {
		a.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if a.synthTime != nil && elapsed > 0 {
		a.synthTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	err := a.journal.Append(ctx, journal.Record{
		TraceID:    traceID,
		Voice:      req.Voice,
		Speed:      req.Speed,
		TextChars:  len(req.Text),
		Segments:   segments,
		DurationMS: elapsed.Milliseconds(),
		Outcome:    outcome,
		Detail:     detail,
	})
	if err != nil {
		a.logger.Warn("failed to journal synthesis",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()))
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= textPreviewChars {
		return text
	}
	return string(runes[:textPreviewChars])
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (a *API) writeError(w http.ResponseWriter, status int, detail string) {
	a.writeJSON(w, status, errorResponse{Detail: detail})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
