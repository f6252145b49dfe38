// ABOUTME: One-line human-readable descriptions of event log entries for terminal and web views.
package reducer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389-research/storyteller/engine"
)

// logFields are the extra fields event log descriptions draw on. They stay
// raw so one oddly typed field does not blank the others.
type logFields struct {
	Start  json.RawMessage `json:"start"`
	End    json.RawMessage `json:"end"`
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// Describe renders a frame as a single log line.
func Describe(f engine.Frame) string {
	var lf logFields
	_ = json.Unmarshal(f.Raw(), &lf)

	switch f.Kind() {
	case engine.KindRunStart:
		if start := flatten(lf.Start); start != "" {
			return "Run started at " + start
		}
		return "Run started"
	case engine.KindCallStart:
		var tool *engine.Tool
		if cs, ok := f.(*engine.CallStart); ok {
			tool = cs.Tool
		}
		return "Tool starting: " + toolLabel(tool)
	case "callChat":
		return "Chat in progress with your input >> " + flatten(lf.Input)
	case engine.KindCallFinish:
		return "Call finished: " + flatten(lf.Output)
	case engine.KindRunFinish:
		if end := flatten(lf.End); end != "" {
			return "Run finished at " + end
		}
		return "Run finished"
	case "":
		return string(f.Raw())
	default:
		return fmt.Sprintf("%s: %s", f.Kind(), f.Raw())
	}
}

func toolLabel(t *engine.Tool) string {
	switch {
	case t == nil:
		return "unknown tool"
	case t.Description != "":
		return t.Description
	case t.Name != "":
		return t.Name
	default:
		return "unknown tool"
	}
}

// flatten turns a string, an output array, or any other JSON value into text.
func flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var outs []engine.Output
	if err := json.Unmarshal(raw, &outs); err == nil {
		parts := make([]string, 0, len(outs))
		for _, o := range outs {
			if o.Content != "" {
				parts = append(parts, o.Content)
			}
		}
		return strings.Join(parts, " ")
	}
	return string(raw)
}
