// ABOUTME: History mode: prints the most recent runs recorded in the relay's run journal.
package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/2389-research/storyteller/journal"
)

// runHistory prints the last cfg.limit journal entries, oldest first.
func runHistory(cfg config, out io.Writer) error {
	if cfg.journalPath == "" {
		return fmt.Errorf("run journal is disabled")
	}
	entries, err := journal.Replay(cfg.journalPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No runs recorded in %s.\n", cfg.journalPath)
		return nil
	}
	if cfg.limit > 0 && len(entries) > cfg.limit {
		entries = entries[len(entries)-cfg.limit:]
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tOUTCOME\tFRAMES\tDURATION\tINPUT")
	for _, e := range entries {
		outcome := e.Outcome
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.RunID,
			outcome,
			e.Frames,
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			e.Input,
		)
	}
	return tw.Flush()
}
