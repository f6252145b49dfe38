// ABOUTME: Help display for the storyteller CLI with modes, grouped flags, examples, and environment status.
// ABOUTME: Provides printHelp for usage output and envStatus for API key detection.
package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes a formatted help message to w, including usage patterns,
// grouped flags, examples, and environment status.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "storyteller %s - AI story-book generator\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  storyteller [serve] [flags]          Start the web UI and story relay")
	fmt.Fprintln(w, "  storyteller tui [flags]              Interactive terminal client")
	fmt.Fprintln(w, "  storyteller generate -story <text>   Generate one story and print progress")
	fmt.Fprintln(w, "  storyteller history [-n 20]          Show recent runs from the run journal")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server Flags:")
	fmt.Fprintln(w, "  -addr <host:port>     Listen address (default: 127.0.0.1:3000)")
	fmt.Fprintln(w, "  -stories-dir <dir>    Story library directory (default: public/stories)")
	fmt.Fprintln(w, "  -engine <name>        gptscript or builtin (default: gptscript)")
	fmt.Fprintln(w, "  -script <path>        Script to run (default: scripts/story-book.gpt)")
	fmt.Fprintln(w, "  -gptscript-bin <path> gptscript executable (default: gptscript on PATH)")
	fmt.Fprintln(w, "  -model <name>         Chat model for the builtin engine (default: gpt-4o-mini)")
	fmt.Fprintln(w, "  -image-model <name>   Image model for the builtin engine (default: dall-e-3)")
	fmt.Fprintln(w, "  -illustrate           Illustrate pages with the builtin engine")
	fmt.Fprintln(w, "  -base-url <url>       Custom API base URL for the model provider")
	fmt.Fprintln(w, "  -run-timeout <dur>    Upper bound for one run, e.g. 10m (default: none)")
	fmt.Fprintln(w, "  -max-runs <n>         Maximum simultaneous runs (default: unlimited)")
	fmt.Fprintln(w, "  -journal <path>       Run journal (default: $XDG_DATA_HOME/storyteller/runs.jsonl, off disables)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Client Flags:")
	fmt.Fprintln(w, "  -server <url>         Relay to connect to (default: start one in-process)")
	fmt.Fprintln(w, "  -story <text>         Story prompt (generate)")
	fmt.Fprintln(w, "  -pages <n>            Pages to request, 1-10 (generate)")
	fmt.Fprintln(w, "  -log-file <path>      Write logs here while the TUI runs")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -config <path>        YAML config file (default: $XDG_CONFIG_HOME/storyteller/config.yaml)")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w, "  -help                 Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  storyteller serve -addr 127.0.0.1:8080")
	fmt.Fprintln(w, "  storyteller tui -server http://127.0.0.1:3000")
	fmt.Fprintln(w, "  storyteller generate -engine builtin -story \"a shy dragon\" -pages 3")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  OPENAI_API_KEY        %s\n", envStatus("OPENAI_API_KEY"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Both engines need OPENAI_API_KEY to reach the model provider.")
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}
