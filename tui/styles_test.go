// ABOUTME: Tests for the outcome and phase style lookups.
package tui

import (
	"testing"

	"github.com/2389-research/storyteller/reducer"
)

func TestStyleForOutcome(t *testing.T) {
	if StyleForOutcome(reducer.OutcomeCompleted).GetForeground() != CompletedStyle.GetForeground() {
		t.Error("completed should use CompletedStyle")
	}
	for _, o := range []reducer.Outcome{reducer.OutcomeTruncated, reducer.OutcomeFailedToStart} {
		if StyleForOutcome(o).GetForeground() != FailedStyle.GetForeground() {
			t.Errorf("%v should use FailedStyle", o)
		}
	}
	if StyleForOutcome(reducer.OutcomeNone).GetForeground() != IdleStyle.GetForeground() {
		t.Error("none should use IdleStyle")
	}
}

func TestStyleForPhase(t *testing.T) {
	if StyleForPhase(reducer.PhaseRunning).GetForeground() != RunningStyle.GetForeground() {
		t.Error("running should use RunningStyle")
	}
	if StyleForPhase(reducer.PhaseFinished).GetForeground() != CompletedStyle.GetForeground() {
		t.Error("finished should use CompletedStyle")
	}
	if StyleForPhase(reducer.PhaseIdle).GetForeground() != IdleStyle.GetForeground() {
		t.Error("idle should use IdleStyle")
	}
}
