// ABOUTME: Engine abstraction for the story generation runtime: the Engine interface, Run handle, and errors.
// ABOUTME: StartRun turns a producer function into a Run whose event channel closes when the producer returns.
package engine

import (
	"context"
	"errors"
	"sync"
)

// DefaultEventBuffer is the event channel capacity used by StartRun.
const DefaultEventBuffer = 64

var (
	// ErrScriptNotFound means the script identifier does not resolve.
	ErrScriptNotFound = errors.New("script not found")
	// ErrEngineUnavailable means the engine cannot be reached or started.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrMissingCredential means the model-provider credential is empty.
	ErrMissingCredential = errors.New("missing model provider credential")
)

// Options controls a single engine run.
type Options struct {
	// Input is the command-line-style argument string handed to the script.
	Input string
	// DisableCache forces the engine to recompute every tool call.
	DisableCache bool
}

// Engine starts script runs. Run returns an error only when the run could
// not be set up; failures after that are reported by (*Run).Wait.
type Engine interface {
	Run(ctx context.Context, script string, opts Options) (*Run, error)
}

// EmitFunc delivers one frame to the run's consumer. It blocks while the
// consumer is behind and returns the context error once the run is cancelled.
type EmitFunc func(Frame) error

// Run is a handle on an in-flight engine run.
type Run struct {
	events chan Frame
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// StartRun launches produce in its own goroutine and returns a Run that
// exposes the frames it emits. The events channel is closed after produce
// returns; its error becomes the result of Wait.
func StartRun(ctx context.Context, produce func(ctx context.Context, emit EmitFunc) error) *Run {
	r := &Run{
		events: make(chan Frame, DefaultEventBuffer),
		done:   make(chan struct{}),
	}

	emit := func(f Frame) error {
		select {
		case r.events <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		err := produce(ctx, emit)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.events)
		close(r.done)
	}()

	return r
}

// Events returns the channel of frames in the order the engine emitted them.
func (r *Run) Events() <-chan Frame {
	return r.events
}

// Wait blocks until the run has finished and returns its terminal error.
// Callers must drain Events first or cancel the run's context, otherwise a
// producer blocked on a full channel never returns.
func (r *Run) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}
