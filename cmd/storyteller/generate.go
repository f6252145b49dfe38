// ABOUTME: Non-interactive generate mode: runs one story through the relay and prints progress lines.
// ABOUTME: Prints new event log entries, tool changes, and progress text as the reducer state changes.
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/2389-research/storyteller/reducer"
)

// progressPrinter prints what changed between successive states.
type progressPrinter struct {
	w        io.Writer
	events   int
	tool     string
	progress string
}

func (p *progressPrinter) onChange(s *reducer.State) {
	if s.Phase == reducer.PhaseIdle {
		return
	}
	// Submit keeps earlier entries, so only print ones past the high mark.
	for _, f := range s.Events[min(p.events, len(s.Events)):] {
		fmt.Fprintf(p.w, "[event] %s\n", reducer.Describe(f))
	}
	p.events = len(s.Events)

	if s.CurrentTool != p.tool {
		p.tool = s.CurrentTool
		if p.tool != "" {
			fmt.Fprintf(p.w, "[tool] %s\n", p.tool)
		}
	}
	if s.ProgressText != p.progress {
		p.progress = s.ProgressText
		fmt.Fprintf(p.w, ">> %s\n", p.progress)
	}
}

// runGenerate submits one story and waits for it to finish. Only a run that
// reached runFinish counts as success.
func runGenerate(ctx context.Context, client *reducer.Client, cfg config, out io.Writer) error {
	req := reducer.GenerationRequest{Story: cfg.story, Path: cfg.storiesDir}
	if cfg.pages > 0 {
		pages := cfg.pages
		req.Pages = &pages
	}

	var s reducer.State
	printer := &progressPrinter{w: out}
	if err := client.Run(ctx, req, &s, printer.onChange); err != nil {
		return err
	}
	if !s.ShouldNotify() {
		return fmt.Errorf("story generation ended early (%s)", s.Outcome)
	}
	fmt.Fprintf(out, "Story generated! Find it in %s.\n", cfg.storiesDir)
	return nil
}
