// ABOUTME: Generation request body accepted by the relay and its translation into engine input.
// ABOUTME: BuildInput emits one --flag segment per present field, space-joined and trimmed.
package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GenerationRequest is the JSON body of POST /api/run-script. Every field is
// optional; the engine decides what a missing story or page count means.
type GenerationRequest struct {
	Story string `json:"story,omitempty"`
	Pages *int   `json:"pages,omitempty"`
	Path  string `json:"path,omitempty"`
}

// BuildInput renders the request as a command-line-style input string.
// Strings count as present when non-empty, pages when non-nil and non-zero.
func BuildInput(req GenerationRequest) string {
	var b strings.Builder
	if req.Story != "" {
		b.WriteString("--story ")
		b.WriteString(req.Story)
	}
	if req.Pages != nil && *req.Pages != 0 {
		b.WriteString(" --pages ")
		b.WriteString(strconv.Itoa(*req.Pages))
	}
	if req.Path != "" {
		b.WriteString(" --path ")
		b.WriteString(req.Path)
	}
	return strings.TrimSpace(b.String())
}

// decodeRequest reads a request body. An empty body is an empty request.
func decodeRequest(r io.Reader) (GenerationRequest, error) {
	var req GenerationRequest
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return req, fmt.Errorf("read body: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode body: %w", err)
	}
	return req, nil
}
