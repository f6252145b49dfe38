// ABOUTME: Tests for the CLI help output and environment status detection.
package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintHelpContents(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	var buf bytes.Buffer
	printHelp(&buf, "1.2.3")
	out := buf.String()

	for _, want := range []string{
		"storyteller 1.2.3",
		"storyteller tui",
		"storyteller generate -story",
		"-stories-dir",
		"-run-timeout",
		"-server <url>",
		"OPENAI_API_KEY        [set]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestEnvStatus(t *testing.T) {
	t.Setenv("TEST_STORY_STATUS", "")
	if got := envStatus("TEST_STORY_STATUS"); got != "[not set]" {
		t.Errorf("expected [not set], got %q", got)
	}
	t.Setenv("TEST_STORY_STATUS", "x")
	if got := envStatus("TEST_STORY_STATUS"); got != "[set]" {
		t.Errorf("expected [set], got %q", got)
	}
}
