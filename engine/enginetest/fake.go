// ABOUTME: Scriptable fake Engine for tests: replays canned frames, fails setup, or fails mid-run on demand.
// ABOUTME: Records every Run call so tests can assert on the script and options the caller passed.
package enginetest

import (
	"context"
	"sync"

	"github.com/2389-research/storyteller/engine"
)

// Call records one invocation of Fake.Run.
type Call struct {
	Script string
	Opts   engine.Options
}

// Fake is an engine.Engine whose behavior is set by its fields.
type Fake struct {
	Frames   []engine.Frame // emitted in order
	SetupErr error          // returned from Run before any frame
	RunErr   error          // returned from Wait after all frames
	// Block keeps the run open after the frames until its context ends.
	Block bool

	mu    sync.Mutex
	calls []Call
	// Cancelled receives the context error of every blocked run that was cancelled.
	Cancelled chan error
}

// Compile-time interface assertion.
var _ engine.Engine = (*Fake)(nil)

// Run implements engine.Engine.
func (f *Fake) Run(ctx context.Context, script string, opts engine.Options) (*engine.Run, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Script: script, Opts: opts})
	f.mu.Unlock()

	if f.SetupErr != nil {
		return nil, f.SetupErr
	}

	return engine.StartRun(ctx, func(ctx context.Context, emit engine.EmitFunc) error {
		for _, fr := range f.Frames {
			if err := emit(fr); err != nil {
				return err
			}
		}
		if f.Block {
			<-ctx.Done()
			if f.Cancelled != nil {
				f.Cancelled <- ctx.Err()
			}
			return ctx.Err()
		}
		return f.RunErr
	}), nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// MustFrame decodes a JSON literal into a Frame and panics if it is invalid.
func MustFrame(raw string) engine.Frame {
	fr, err := engine.DecodeFrame([]byte(raw))
	if err != nil {
		panic(err)
	}
	return fr
}
