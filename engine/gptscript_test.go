// ABOUTME: Tests for the GPTScript CLI adapter using shell scripts that stand in for the gptscript binary.
// ABOUTME: Covers setup failures, argument and credential passing, event decoding, and exit failures.
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeFakeBinary creates an executable shell script and returns its path.
func writeFakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake gptscript binary needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "gptscript")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func writeScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "story-book.gpt"), []byte("name: story-book\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return dir
}

func TestGPTScriptMissingBinary(t *testing.T) {
	g := NewGPTScript(GPTScriptConfig{Binary: "definitely-not-a-real-gptscript-binary"})
	_, err := g.Run(context.Background(), "story-book.gpt", Options{})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestGPTScriptMissingScript(t *testing.T) {
	bin := writeFakeBinary(t, "exit 0\n")
	g := NewGPTScript(GPTScriptConfig{Binary: bin, WorkDir: t.TempDir()})
	_, err := g.Run(context.Background(), "missing.gpt", Options{})
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
}

func TestGPTScriptRemoteScriptSkipsStat(t *testing.T) {
	bin := writeFakeBinary(t, "exit 0\n")
	g := NewGPTScript(GPTScriptConfig{Binary: bin, WorkDir: t.TempDir()})
	run, err := g.Run(context.Background(), "https://get.gptscript.ai/echo.gpt", Options{})
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	for range run.Events() {
	}
	if err := run.Wait(); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
}

func TestGPTScriptStreamsEvents(t *testing.T) {
	workDir := writeScript(t)
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_ARGS_FILE", argsFile)

	bin := writeFakeBinary(t, `printf '%s\n' "$@" "key=$OPENAI_API_KEY" > "$FAKE_ARGS_FILE"
printf '{"type":"runStart"}\n\n' >&3
printf '{"type":"callStart","tool":{"description":"Illustrator"}}\n\n' >&3
printf '42\n\n' >&3
printf '{"type":"callProgress","output":[{"content":"a"},{"content":"a cat appears"}]}\n\n' >&3
printf '{"type":"runFinish","output":"ok"}\n\n' >&3
`)
	g := NewGPTScript(GPTScriptConfig{Binary: bin, APIKey: "sk-test", WorkDir: workDir})

	run, err := g.Run(context.Background(), "story-book.gpt", Options{
		Input:        "--story a cat --pages 1",
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}

	var kinds []FrameKind
	for f := range run.Events() {
		kinds = append(kinds, f.Kind())
	}
	if err := run.Wait(); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	want := []FrameKind{KindRunStart, KindCallStart, KindCallProgress, KindRunFinish}
	if len(kinds) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("frame %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := strings.Split(strings.TrimSpace(string(data)), "\n")
	wantArgs := []string{"--events-stream-to=/dev/fd/3", "--disable-cache", "story-book.gpt", "--story a cat --pages 1", "key=sk-test"}
	if len(args) != len(wantArgs) {
		t.Fatalf("expected args %q, got %q", wantArgs, args)
	}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Errorf("arg %d: expected %q, got %q", i, wantArgs[i], args[i])
		}
	}
}

func TestGPTScriptExitFailure(t *testing.T) {
	workDir := writeScript(t)
	bin := writeFakeBinary(t, `printf '{"type":"runStart"}\n\n' >&3
echo "model provider rejected the key" >&2
exit 3
`)
	g := NewGPTScript(GPTScriptConfig{Binary: bin, WorkDir: workDir})

	run, err := g.Run(context.Background(), "story-book.gpt", Options{})
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	n := 0
	for range run.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 frame before failure, got %d", n)
	}
	err = run.Wait()
	if err == nil {
		t.Fatal("expected an error from a failing run")
	}
	if !strings.Contains(err.Error(), "model provider rejected the key") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestGPTScriptArgsWithoutCache(t *testing.T) {
	g := NewGPTScript(GPTScriptConfig{})
	args := g.args("s.gpt", Options{})
	if len(args) != 2 || args[1] != "s.gpt" {
		t.Errorf("unexpected args %q", args)
	}
}
