// ABOUTME: SSE relay handler: starts an engine run per request and forwards every frame as "event: <json>".
// ABOUTME: Setup failures become JSON 500s; failures after streaming began abort the response.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/journal"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
)

// DefaultScript is the story-book script run when none is configured.
const DefaultScript = "scripts/story-book.gpt"

const maxBodyBytes = 1 << 20

// Config configures the relay handler.
type Config struct {
	Engine engine.Engine // required
	Script string        // script identifier (default: DefaultScript)
	// RunTimeout bounds each engine run; zero means no limit.
	RunTimeout time.Duration
	// MaxConcurrentRuns caps simultaneous runs across clients; zero means
	// unlimited. Requests over the cap get 429.
	MaxConcurrentRuns int
	Metrics           *Metrics // nil registers on a private registry
	// Journal, if set, receives one entry per run the engine was asked for.
	Journal Journal
}

// Journal records finished runs.
type Journal interface {
	Append(journal.Entry) error
}

// Handler serves POST /api/run-script.
type Handler struct {
	engine  engine.Engine
	script  string
	timeout time.Duration
	slots   *semaphore.Weighted
	metrics *Metrics
	journal Journal
}

// NewHandler creates the relay handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Script == "" {
		cfg.Script = DefaultScript
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	h := &Handler{
		engine:  cfg.Engine,
		script:  cfg.Script,
		timeout: cfg.RunTimeout,
		metrics: cfg.Metrics,
		journal: cfg.Journal,
	}
	if cfg.MaxConcurrentRuns > 0 {
		h.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		h.metrics.runs.WithLabelValues(outcomeBadRequest).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.slots != nil {
		if !h.slots.TryAcquire(1) {
			h.metrics.runs.WithLabelValues(outcomeRejected).Inc()
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many concurrent runs"})
			return
		}
		defer h.slots.Release(1)
	}

	// The run lives exactly as long as the request: a client disconnect
	// cancels the request context and with it the engine run.
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(r.Context(), h.timeout)
	} else {
		ctx, cancel = context.WithCancel(r.Context())
	}
	defer cancel()

	runID := ulid.Make().String()
	input := BuildInput(req)
	log.Printf("component=relay action=start run_id=%s script=%s input=%q", runID, h.script, input)

	start := time.Now()
	entry := journal.Entry{RunID: runID, Script: h.script, Input: input, StartedAt: start.UTC()}

	run, err := h.engine.Run(ctx, h.script, engine.Options{Input: input, DisableCache: true})
	if err != nil {
		log.Printf("component=relay action=setup_failed run_id=%s err=%v", runID, err)
		h.metrics.runs.WithLabelValues(outcomeSetupFailed).Inc()
		entry.Outcome, entry.Error = outcomeSetupFailed, err.Error()
		h.record(entry, start)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.metrics.activeRuns.Inc()
	defer func() {
		h.metrics.activeRuns.Dec()
		h.metrics.runDuration.Observe(time.Since(start).Seconds())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Run-ID", runID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	frames := 0
	var writeErr error
	for frame := range run.Events() {
		if writeErr != nil {
			continue
		}
		if writeErr = writeFrame(w, frame); writeErr != nil {
			cancel()
			continue
		}
		flush()
		frames++
		h.metrics.frames.WithLabelValues(frameLabel(frame.Kind())).Inc()
	}
	runErr := run.Wait()
	entry.Frames = frames

	switch {
	case r.Context().Err() != nil || writeErr != nil:
		log.Printf("component=relay action=client_gone run_id=%s frames=%d", runID, frames)
		h.metrics.runs.WithLabelValues(outcomeCancelled).Inc()
		entry.Outcome = outcomeCancelled
		h.record(entry, start)
	case runErr != nil:
		log.Printf("component=relay action=run_failed run_id=%s frames=%d err=%v", runID, frames, runErr)
		h.metrics.runs.WithLabelValues(outcomeFailed).Inc()
		entry.Outcome, entry.Error = outcomeFailed, runErr.Error()
		h.record(entry, start)
		// Headers are gone; the only way to tell the client is to cut the stream.
		panic(http.ErrAbortHandler)
	default:
		log.Printf("component=relay action=finish run_id=%s frames=%d duration=%s",
			runID, frames, time.Since(start).Round(time.Millisecond))
		h.metrics.runs.WithLabelValues(outcomeCompleted).Inc()
		entry.Outcome = outcomeCompleted
		h.record(entry, start)
	}
}

// record appends entry to the journal, if one is configured.
func (h *Handler) record(entry journal.Entry, start time.Time) {
	if h.journal == nil {
		return
	}
	entry.DurationMS = time.Since(start).Milliseconds()
	if err := h.journal.Append(entry); err != nil {
		log.Printf("component=relay action=journal_append run_id=%s err=%v", entry.RunID, err)
	}
}

// writeFrame writes one SSE frame. Payloads are compacted when they contain
// newlines, since a blank line inside the JSON would end the frame early.
func writeFrame(w http.ResponseWriter, frame engine.Frame) error {
	raw := []byte(frame.Raw())
	if bytes.ContainsAny(raw, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("compact frame: %w", err)
		}
		raw = buf.Bytes()
	}
	if _, err := fmt.Fprintf(w, "event: %s\n\n", raw); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("component=relay action=write_json err=%v", err)
	}
}
