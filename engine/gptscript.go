// ABOUTME: GPTScript engine adapter that runs the gptscript CLI and decodes its JSON event stream.
// ABOUTME: Events are read from an extra file descriptor; the process is killed when the run context ends.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// eventsFD is the descriptor the child sees for the first ExtraFiles entry.
const eventsFD = 3

// GPTScriptConfig configures the CLI adapter.
type GPTScriptConfig struct {
	Binary  string // executable name or path (default: "gptscript")
	APIKey  string // model-provider credential, exported as OPENAI_API_KEY
	WorkDir string // working directory for the child and for relative scripts
}

// GPTScript runs scripts through the gptscript command-line tool.
type GPTScript struct {
	binary  string
	apiKey  string
	workDir string
}

// Compile-time interface assertion.
var _ Engine = (*GPTScript)(nil)

// NewGPTScript creates a CLI-backed engine. The credential is captured once
// here and reused for every run.
func NewGPTScript(cfg GPTScriptConfig) *GPTScript {
	if cfg.Binary == "" {
		cfg.Binary = "gptscript"
	}
	return &GPTScript{
		binary:  cfg.Binary,
		apiKey:  cfg.APIKey,
		workDir: cfg.WorkDir,
	}
}

// Run starts the script. Setup failures (binary missing, local script
// missing, process start failure) are returned directly; everything after
// the process has started is reported by Wait.
func (g *GPTScript) Run(ctx context.Context, script string, opts Options) (*Run, error) {
	bin, err := exec.LookPath(g.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, g.binary, err)
	}

	if !isRemoteScript(script) {
		path := script
		if !filepath.IsAbs(path) && g.workDir != "" {
			path = filepath.Join(g.workDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, script)
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create event pipe: %v", ErrEngineUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, bin, g.args(script, opts)...)
	cmd.Dir = g.workDir
	cmd.Env = os.Environ()
	if g.apiKey != "" {
		cmd.Env = append(cmd.Env, "OPENAI_API_KEY="+g.apiKey)
	}
	cmd.ExtraFiles = []*os.File{pw}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: start %s: %v", ErrEngineUnavailable, g.binary, err)
	}
	// The child holds its own copy; ours must go so the reader sees EOF.
	pw.Close()

	return StartRun(ctx, func(ctx context.Context, emit EmitFunc) error {
		streamErr := decodeEventStream(pr, emit)
		pr.Close()

		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamErr != nil {
			return streamErr
		}
		if waitErr != nil {
			return fmt.Errorf("gptscript exited: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
		}
		return nil
	}), nil
}

// args assembles the CLI arguments: engine flags, then the script, then the
// input string as a single trailing argument.
func (g *GPTScript) args(script string, opts Options) []string {
	args := []string{fmt.Sprintf("--events-stream-to=/dev/fd/%d", eventsFD)}
	if opts.DisableCache {
		args = append(args, "--disable-cache")
	}
	args = append(args, script)
	if opts.Input != "" {
		args = append(args, opts.Input)
	}
	return args
}

// decodeEventStream reads concatenated JSON events from r and emits each as
// a Frame. Events that are valid JSON but not objects are logged and
// skipped; a broken stream ends decoding with an error.
func decodeEventStream(r io.Reader, emit EmitFunc) error {
	dec := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode event stream: %w", err)
		}

		f, err := DecodeFrame(raw)
		if err != nil {
			log.Printf("engine: skipping event err=%v", err)
			continue
		}
		if err := emit(f); err != nil {
			return err
		}
	}
}

func isRemoteScript(script string) bool {
	return strings.HasPrefix(script, "http://") ||
		strings.HasPrefix(script, "https://") ||
		strings.HasPrefix(script, "github.com/")
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
