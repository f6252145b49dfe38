// ABOUTME: Tests for the SSE relay handler and BuildInput using the scriptable fake engine.
// ABOUTME: Covers streaming, setup failures, bad bodies, admission limits, aborts, cancellation, and timeouts.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/engine/enginetest"
	"github.com/2389-research/storyteller/journal"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func intPtr(n int) *int { return &n }

func TestBuildInput(t *testing.T) {
	tests := []struct {
		name string
		req  GenerationRequest
		want string
	}{
		{"none", GenerationRequest{}, ""},
		{"story", GenerationRequest{Story: "a cat"}, "--story a cat"},
		{"pages", GenerationRequest{Pages: intPtr(3)}, "--pages 3"},
		{"path", GenerationRequest{Path: "out"}, "--path out"},
		{"story pages", GenerationRequest{Story: "a cat", Pages: intPtr(3)}, "--story a cat --pages 3"},
		{"story path", GenerationRequest{Story: "a cat", Path: "out"}, "--story a cat --path out"},
		{"pages path", GenerationRequest{Pages: intPtr(2), Path: "out"}, "--pages 2 --path out"},
		{"all", GenerationRequest{Story: "a cat", Pages: intPtr(2), Path: "public/stories"}, "--story a cat --pages 2 --path public/stories"},
		{"zero pages is absent", GenerationRequest{Story: "x", Pages: intPtr(0)}, "--story x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInput(tt.req)
			if got != tt.want {
				t.Errorf("BuildInput = %q, want %q", got, tt.want)
			}
			if got != strings.TrimSpace(got) || strings.Contains(got, "  ") {
				t.Errorf("BuildInput produced stray whitespace: %q", got)
			}
		})
	}
}

func TestHandlerStreamsFrames(t *testing.T) {
	raws := []string{
		`{"type":"runStart","id":"r1"}`,
		`{"type":"callStart","tool":{"description":"Illustrator"}}`,
		`{"type":"callProgress","output":[{"content":"a"},{"content":"a cat appears"}]}`,
		`{"type":"runFinish","output":"done"}`,
	}
	fake := &enginetest.Fake{}
	for _, raw := range raws {
		fake.Frames = append(fake.Frames, enginetest.MustFrame(raw))
	}
	metrics := NewMetrics(nil)
	h := NewHandler(Config{Engine: fake, Script: "story-book.gpt", Metrics: metrics})

	req := httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{"story":"a cat","pages":2,"path":"public/stories"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Run-ID") == "" {
		t.Error("expected an X-Run-ID header")
	}

	var want strings.Builder
	for _, raw := range raws {
		want.WriteString("event: " + raw + "\n\n")
	}
	if rec.Body.String() != want.String() {
		t.Errorf("body =\n%s\nwant\n%s", rec.Body.String(), want.String())
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(calls))
	}
	if calls[0].Script != "story-book.gpt" {
		t.Errorf("script = %q", calls[0].Script)
	}
	if !calls[0].Opts.DisableCache {
		t.Error("expected caching to be disabled")
	}
	if calls[0].Opts.Input != "--story a cat --pages 2 --path public/stories" {
		t.Errorf("input = %q", calls[0].Opts.Input)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(outcomeCompleted)); got != 1 {
		t.Errorf("completed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.frames.WithLabelValues("callProgress")); got != 1 {
		t.Errorf("callProgress frames = %v, want 1", got)
	}
}

func TestHandlerSetupFailure(t *testing.T) {
	fake := &enginetest.Fake{SetupErr: engine.ErrScriptNotFound}
	h := NewHandler(Config{Engine: fake})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{"story":"x"}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != engine.ErrScriptNotFound.Error() {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHandlerInvalidBody(t *testing.T) {
	fake := &enginetest.Fake{}
	h := NewHandler(Config{Engine: fake})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{"story":`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Error("engine should not run for an invalid body")
	}
}

func TestHandlerEmptyBodyRunsWithEmptyInput(t *testing.T) {
	fake := &enginetest.Fake{}
	h := NewHandler(Config{Engine: fake})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Opts.Input != "" {
		t.Errorf("expected one call with empty input, got %+v", calls)
	}
	if calls[0].Script != DefaultScript {
		t.Errorf("script = %q, want %q", calls[0].Script, DefaultScript)
	}
}

func TestHandlerRejectsWhenFull(t *testing.T) {
	fake := &enginetest.Fake{}
	h := NewHandler(Config{Engine: fake, MaxConcurrentRuns: 1})
	if !h.slots.TryAcquire(1) {
		t.Fatal("could not take the only slot")
	}
	defer h.slots.Release(1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{}`)))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Error("engine should not run when the relay is full")
	}
}

func TestHandlerAbortsOnMidStreamFailure(t *testing.T) {
	fake := &enginetest.Fake{
		Frames: []engine.Frame{enginetest.MustFrame(`{"type":"runStart"}`)},
		RunErr: errors.New("engine crashed"),
	}
	srv := httptest.NewServer(NewHandler(Config{Engine: fake}))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"story":"x"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 before the abort", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatal("expected a truncated stream error")
	}
	if !strings.HasPrefix(string(body), `event: {"type":"runStart"}`) {
		t.Errorf("expected the frame sent before the failure, got %q", body)
	}
}

func TestHandlerCancelsRunWhenClientLeaves(t *testing.T) {
	fake := &enginetest.Fake{
		Frames:    []engine.Frame{enginetest.MustFrame(`{"type":"runStart"}`)},
		Block:     true,
		Cancelled: make(chan error, 1),
	}
	srv := httptest.NewServer(NewHandler(Config{Engine: fake}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, strings.NewReader(`{}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "event: ") {
		t.Fatalf("expected first frame, got %q err=%v", line, err)
	}
	cancel()

	select {
	case err := <-fake.Cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine run was not cancelled after the client left")
	}
}

func TestHandlerRunTimeout(t *testing.T) {
	fake := &enginetest.Fake{Block: true, Cancelled: make(chan error, 1)}
	srv := httptest.NewServer(NewHandler(Config{Engine: fake, RunTimeout: 50 * time.Millisecond}))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("expected a timed-out run to abort the stream")
	}

	select {
	case err := <-fake.Cancelled:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine run did not time out")
	}
}

func TestWriteFrameCompactsMultilineJSON(t *testing.T) {
	frame := enginetest.MustFrame("{\n  \"type\": \"runStart\"\n}")
	rec := httptest.NewRecorder()
	if err := writeFrame(rec, frame); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if got := rec.Body.String(); got != "event: {\"type\":\"runStart\"}\n\n" {
		t.Errorf("frame = %q", got)
	}
}

// memJournal collects journal entries in memory.
type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (j *memJournal) Append(e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return j.err
}

func TestHandlerJournalsRuns(t *testing.T) {
	j := &memJournal{}
	fake := &enginetest.Fake{Frames: []engine.Frame{
		enginetest.MustFrame(`{"type":"runStart"}`),
		enginetest.MustFrame(`{"type":"runFinish"}`),
	}}
	h := NewHandler(Config{Engine: fake, Script: "s.gpt", Journal: j})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{"story":"a cat"}`)))

	fake.SetupErr = engine.ErrEngineUnavailable
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/api/run-script", strings.NewReader(`{"story":"a dog"}`)))

	if len(j.entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(j.entries))
	}
	done := j.entries[0]
	if done.Outcome != outcomeCompleted || done.Frames != 2 || done.Input != "--story a cat" || done.Script != "s.gpt" {
		t.Errorf("unexpected completed entry: %+v", done)
	}
	if done.RunID != rec.Header().Get("X-Run-ID") {
		t.Errorf("RunID = %q, want the X-Run-ID header %q", done.RunID, rec.Header().Get("X-Run-ID"))
	}
	if done.StartedAt.IsZero() {
		t.Error("expected a start time")
	}

	failed := j.entries[1]
	if failed.Outcome != outcomeSetupFailed || failed.Error != engine.ErrEngineUnavailable.Error() || failed.Frames != 0 {
		t.Errorf("unexpected setup failure entry: %+v", failed)
	}
}

func TestHandlerJournalErrorDoesNotFailRun(t *testing.T) {
	j := &memJournal{err: errors.New("disk full")}
	fake := &enginetest.Fake{Frames: []engine.Frame{enginetest.MustFrame(`{"type":"runFinish"}`)}}
	h := NewHandler(Config{Engine: fake, Journal: j})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run-script", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "runFinish") {
		t.Error("expected the frame to be streamed")
	}
}
