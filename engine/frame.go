// ABOUTME: Typed engine frames: a sealed union over callStart, callProgress, runFinish and a catch-all.
// ABOUTME: Every frame keeps the raw JSON it was decoded from so relays can forward it unmodified.
package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FrameKind identifies the kind of event the engine produced.
type FrameKind string

const (
	KindRunStart     FrameKind = "runStart"
	KindCallStart    FrameKind = "callStart"
	KindCallProgress FrameKind = "callProgress"
	KindCallFinish   FrameKind = "callFinish"
	KindRunFinish    FrameKind = "runFinish"
)

// ErrInvalidFrame is returned by DecodeFrame when the payload is not a JSON object.
var ErrInvalidFrame = errors.New("invalid engine frame")

// Frame is one event emitted by an engine run. The concrete type is one of
// *CallStart, *CallProgress, *RunFinish or *Unrecognized.
type Frame interface {
	Kind() FrameKind
	// Raw returns the JSON encoding of the frame exactly as the engine produced it.
	Raw() json.RawMessage
	sealed()
}

// Tool describes the tool a call frame belongs to.
type Tool struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Output is one element of a callProgress content sequence.
type Output struct {
	Content string `json:"content"`
}

// CallStart marks the beginning of a tool invocation.
type CallStart struct {
	ID   string
	Tool *Tool
	raw  json.RawMessage
}

// CallProgress carries incremental output for a running call. The last
// element of Output is the latest.
type CallProgress struct {
	ID     string
	Tool   *Tool
	Output []Output
	raw    json.RawMessage
}

// RunFinish is the terminal success frame of a run.
type RunFinish struct {
	Output string
	Error  string
	raw    json.RawMessage
}

// Unrecognized holds every frame kind without special handling, including
// runStart and callFinish. Type is whatever the engine put in "type".
type Unrecognized struct {
	Type string
	raw  json.RawMessage
}

func (f *CallStart) Kind() FrameKind    { return KindCallStart }
func (f *CallProgress) Kind() FrameKind { return KindCallProgress }
func (f *RunFinish) Kind() FrameKind    { return KindRunFinish }
func (f *Unrecognized) Kind() FrameKind { return FrameKind(f.Type) }

func (f *CallStart) Raw() json.RawMessage    { return f.raw }
func (f *CallProgress) Raw() json.RawMessage { return f.raw }
func (f *RunFinish) Raw() json.RawMessage    { return f.raw }
func (f *Unrecognized) Raw() json.RawMessage { return f.raw }

func (*CallStart) sealed()    {}
func (*CallProgress) sealed() {}
func (*RunFinish) sealed()    {}
func (*Unrecognized) sealed() {}

// ToolDescription returns the description of the frame's tool, or "" when
// the frame carries no tool.
func (f *CallStart) ToolDescription() string { return f.Tool.description() }

// ToolDescription returns the description of the frame's tool, or "".
func (f *CallProgress) ToolDescription() string { return f.Tool.description() }

// Latest returns the most recent content chunk and whether one exists.
func (f *CallProgress) Latest() (string, bool) {
	if len(f.Output) == 0 {
		return "", false
	}
	return f.Output[len(f.Output)-1].Content, true
}

func (t *Tool) description() string {
	if t == nil {
		return ""
	}
	return t.Description
}

// wireFrame is the union of every field the reducer and relay look at.
// GPTScript SDK frames carry "tool" and "output"; events written by the
// CLI carry "callContext.tool" and a bare "content" string. Fields are kept
// raw and read leniently so a field of an unexpected type degrades to its
// zero value instead of losing the whole frame.
type wireFrame struct {
	Type        json.RawMessage `json:"type"`
	ID          json.RawMessage `json:"id"`
	Tool        json.RawMessage `json:"tool"`
	Output      json.RawMessage `json:"output"`
	Content     json.RawMessage `json:"content"`
	Error       json.RawMessage `json:"error"`
	CallContext json.RawMessage `json:"callContext"`
}

// looseString reads a JSON string, or the literal text of a number or
// boolean. Anything else reads as "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

// looseObject decodes raw as an object of raw fields, or returns nil.
func looseObject(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// looseTool reads a tool object. A bare string is taken as the tool name.
func looseTool(raw json.RawMessage) *Tool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		return &Tool{Name: looseString(raw)}
	}
	m := looseObject(raw)
	if m == nil {
		return nil
	}
	return &Tool{Name: looseString(m["name"]), Description: looseString(m["description"])}
}

// looseOutputs reads an output array. Elements that are not objects keep
// their place with empty content so "last element" stays meaningful.
func looseOutputs(raw json.RawMessage) []Output {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]Output, 0, len(items))
	for _, item := range items {
		out = append(out, Output{Content: looseString(looseObject(item)["content"])})
	}
	return out
}

// DecodeFrame parses one JSON payload into a typed Frame. A payload that is
// not a JSON object returns an error wrapping ErrInvalidFrame; a well-formed
// object with an unknown or missing "type" decodes to *Unrecognized.
func DecodeFrame(data []byte) (Frame, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidFrame)
	}
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	raw := append(json.RawMessage(nil), data...)

	id := looseString(w.ID)
	tool := looseTool(w.Tool)
	if tool == nil {
		tool = looseTool(looseObject(w.CallContext)["tool"])
	}

	kind := looseString(w.Type)
	switch FrameKind(kind) {
	case KindCallStart:
		return &CallStart{ID: id, Tool: tool, raw: raw}, nil
	case KindCallProgress:
		out := looseOutputs(w.Output)
		if len(out) == 0 {
			if content := looseString(w.Content); content != "" {
				out = []Output{{Content: content}}
			}
		}
		return &CallProgress{ID: id, Tool: tool, Output: out, raw: raw}, nil
	case KindRunFinish:
		return &RunFinish{Output: looseString(w.Output), Error: errorText(w.Error), raw: raw}, nil
	default:
		return &Unrecognized{Type: kind, raw: raw}, nil
	}
}

// errorText flattens an "error" field, which engines send either as a
// string or as an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// NewFrame encodes v as JSON and decodes it back into a typed Frame. Engines
// that synthesize their own events use it so the raw and typed views agree.
func NewFrame(v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return DecodeFrame(data)
}
