// ABOUTME: End-to-end tests of Client against a real relay handler backed by the fake engine.
// ABOUTME: Covers completed runs, failed starts, truncated streams, and malformed frames.
package reducer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/engine/enginetest"
	"github.com/2389-research/storyteller/relay"
)

func relayServer(t *testing.T, fake *enginetest.Fake) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(relay.NewHandler(relay.Config{Engine: fake}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRunCompleted(t *testing.T) {
	fake := &enginetest.Fake{Frames: []engine.Frame{
		enginetest.MustFrame(`{"type":"runStart"}`),
		enginetest.MustFrame(`{"type":"callStart","tool":{"description":"Illustrator"}}`),
		enginetest.MustFrame(`{"type":"callProgress","output":[{"content":"a"},{"content":"a cat appears"}]}`),
		enginetest.MustFrame(`{"type":"runFinish"}`),
	}}
	srv := relayServer(t, fake)

	pages := 3
	var s State
	changes := 0
	err := NewClient(srv.URL, nil).Run(context.Background(), GenerationRequest{Story: "a cat", Pages: &pages, Path: DefaultStoriesPath}, &s, func(*State) { changes++ })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !s.ShouldNotify() {
		t.Errorf("expected completed run, got %s/%s", s.Phase, s.Outcome)
	}
	if s.ProgressText != "a cat appears" || s.CurrentTool != "Illustrator" {
		t.Errorf("unexpected state %+v", s)
	}
	if len(s.Events) != 1 {
		t.Errorf("expected runStart in log, got %d entries", len(s.Events))
	}
	if changes == 0 {
		t.Error("expected onChange callbacks")
	}
	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Opts.Input != "--story a cat --pages 3 --path public/stories" {
		t.Errorf("unexpected engine calls %+v", calls)
	}
}

func TestClientRunFailedToStart(t *testing.T) {
	srv := relayServer(t, &enginetest.Fake{SetupErr: engine.ErrEngineUnavailable})

	var s State
	err := NewClient(srv.URL, nil).Run(context.Background(), GenerationRequest{Story: "x"}, &s, nil)

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected *StartError, got %v", err)
	}
	if startErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", startErr.StatusCode)
	}
	if !strings.Contains(startErr.Message, "engine unavailable") {
		t.Errorf("message = %q", startErr.Message)
	}
	if s.Outcome != OutcomeFailedToStart || s.ShouldNotify() {
		t.Errorf("expected failed_to_start without notification, got %s", s.Outcome)
	}
}

func TestClientRunTruncated(t *testing.T) {
	fake := &enginetest.Fake{
		Frames: []engine.Frame{enginetest.MustFrame(`{"type":"callProgress","output":[{"content":"half"}]}`)},
		RunErr: errors.New("engine crashed"),
	}
	srv := relayServer(t, fake)

	var s State
	err := NewClient(srv.URL, nil).Run(context.Background(), GenerationRequest{}, &s, nil)
	if err == nil {
		t.Fatal("expected a read error from the aborted stream")
	}
	if s.Outcome != OutcomeTruncated || s.ShouldNotify() {
		t.Errorf("expected truncated without notification, got %s", s.Outcome)
	}
	if s.ProgressText != "half" {
		t.Errorf("ProgressText = %q, want half", s.ProgressText)
	}
}

func TestClientRunRejectsConcurrentSubmit(t *testing.T) {
	s := State{Phase: PhaseRunning}
	err := NewClient("http://127.0.0.1:1", nil).Run(context.Background(), GenerationRequest{}, &s, nil)
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestConsumeSkipsMalformedFrames(t *testing.T) {
	stream := "event: {\"type\":\"callStart\",\"tool\":{\"description\":\"A\"}}\n\n" +
		"event: {not json}\n\n" +
		"event: [1,2]\n\n" +
		"event: {\"type\":\"callProgress\",\"output\":[{\"content\":\"after\"}]}\n\n" +
		"event: {\"type\":\"runFinish\"}\n\n"

	var s State
	_ = s.Submit()
	if err := Consume(strings.NewReader(stream), &s, nil); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if s.ProgressText != "after" {
		t.Errorf("ProgressText = %q, want after", s.ProgressText)
	}
	if s.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", s.Outcome)
	}
}

func TestConsumeKeepsFramesWithUnexpectedFieldTypes(t *testing.T) {
	stream := "event: {\"type\":\"callStart\",\"tool\":\"Illustrator\"}\n\n" +
		"event: {\"type\":\"callProgress\",\"tool\":\"Illustrator\",\"output\":[{\"content\":\"a cat appears\"}]}\n\n" +
		"event: {\"type\":\"callFinish\",\"id\":7}\n\n"

	var s State
	_ = s.Submit()
	if err := Consume(strings.NewReader(stream), &s, nil); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if s.ProgressText != "a cat appears" {
		t.Errorf("ProgressText = %q, want %q", s.ProgressText, "a cat appears")
	}
	if len(s.Events) != 1 || s.Events[0].Kind() != engine.KindCallFinish {
		t.Fatalf("expected the callFinish frame in the event log, got %d events", len(s.Events))
	}
	if got := Describe(s.Events[0]); !strings.HasPrefix(got, "Call finished") {
		t.Errorf("Describe = %q", got)
	}
}
