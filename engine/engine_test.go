// ABOUTME: Tests for StartRun: frame ordering, terminal errors, and cancellation of blocked producers.
package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartRunDeliversFramesInOrder(t *testing.T) {
	frames := []string{`{"type":"runStart"}`, `{"type":"callStart"}`, `{"type":"runFinish"}`}
	run := StartRun(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		for _, raw := range frames {
			f, err := DecodeFrame([]byte(raw))
			if err != nil {
				return err
			}
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	})

	var got []string
	for f := range run.Events() {
		got = append(got, string(f.Raw()))
	}
	if err := run.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("expected %d frames, got %d", len(frames), len(got))
	}
	for i := range frames {
		if got[i] != frames[i] {
			t.Errorf("frame %d: expected %s, got %s", i, frames[i], got[i])
		}
	}
}

func TestStartRunReportsProducerError(t *testing.T) {
	boom := errors.New("boom")
	run := StartRun(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		return boom
	})
	for range run.Events() {
	}
	if err := run.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestStartRunCancelUnblocksEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := StartRun(ctx, func(ctx context.Context, emit EmitFunc) error {
		f, _ := DecodeFrame([]byte(`{"type":"callProgress"}`))
		for {
			if err := emit(f); err != nil {
				return err
			}
		}
	})

	// Nobody reads Events; the buffer fills and emit blocks until cancel.
	cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	if err := run.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
