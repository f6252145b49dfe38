// ABOUTME: HTTP client for the relay: starts a generation run and folds its SSE stream into a State.
// ABOUTME: A non-OK response or a missing body is a StartError, distinct from a truncated stream.
package reducer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/2389-research/storyteller/engine"
)

// RunScriptPath is the relay route.
const RunScriptPath = "/api/run-script"

// DefaultStoriesPath is where clients ask the engine to save stories.
const DefaultStoriesPath = "public/stories"

// GenerationRequest is the request body the client sends to the relay.
type GenerationRequest struct {
	Story string `json:"story,omitempty"`
	Pages *int   `json:"pages,omitempty"`
	Path  string `json:"path,omitempty"`
}

// StartError reports that the relay did not start streaming.
type StartError struct {
	StatusCode int    // 0 when no response arrived
	Message    string // the relay's error message, if any
	Err        error  // transport error, if any
}

func (e *StartError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("start generation: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("start generation: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("start generation: status %d", e.StatusCode)
	}
}

func (e *StartError) Unwrap() error { return e.Err }

// Client talks to a storyteller relay.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the relay at baseURL. A nil httpClient
// uses a client without a timeout, since runs can take minutes.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Start posts req and returns the event stream. The caller must close it.
// Cancelling ctx closes the connection, which cancels the run on the relay.
func (c *Client) Start(ctx context.Context, req GenerationRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &StartError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RunScriptPath, bytes.NewReader(body))
	if err != nil {
		return nil, &StartError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &StartError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return nil, &StartError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &StartError{StatusCode: resp.StatusCode, Message: "response has no body"}
	}
	return resp.Body, nil
}

// Run submits a run on s, streams it to completion, and returns the final
// error. onChange, if set, is called after every state change.
func (c *Client) Run(ctx context.Context, req GenerationRequest, s *State, onChange func(*State)) error {
	if err := s.Submit(); err != nil {
		return err
	}
	notify(onChange, s)

	body, err := c.Start(ctx, req)
	if err != nil {
		s.StartFailed()
		notify(onChange, s)
		return err
	}
	defer body.Close()
	return Consume(body, s, onChange)
}

// Consume reads frames from r into s until the stream ends. Malformed
// payloads are logged and skipped. The stream's end is recorded with
// StreamEnded; a read error other than EOF is returned.
func Consume(r io.Reader, s *State, onChange func(*State)) error {
	fr := NewFrameReader(r)
	for {
		payload, err := fr.Next()
		if err != nil {
			s.StreamEnded()
			notify(onChange, s)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		frame, err := engine.DecodeFrame([]byte(payload))
		if err != nil {
			log.Printf("component=reducer action=skip_frame err=%v", err)
			continue
		}
		s.Apply(frame)
		notify(onChange, s)
	}
}

func notify(onChange func(*State), s *State) {
	if onChange != nil {
		onChange(s)
	}
}
