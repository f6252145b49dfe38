// ABOUTME: Built-in story-book engine that writes and illustrates a story through an LLM client.
// ABOUTME: Emits GPTScript-shaped frames (runStart, callStart, callProgress, callFinish, runFinish) while it works.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	muxllm "github.com/2389-research/mux/llm"
	"github.com/google/uuid"
)

const (
	defaultStoryPages = 1
	maxStoryPages     = 20
	defaultStoryDir   = "public/stories"
)

// Illustrator produces a PNG image for a prompt.
type Illustrator interface {
	Illustrate(ctx context.Context, prompt string) ([]byte, error)
}

// BuiltinConfig configures the built-in engine.
type BuiltinConfig struct {
	Writer      muxllm.Client // text generation (required)
	Illustrator Illustrator   // image generation; nil skips illustrations
	Model       string        // chat model passed to Writer
	WorkDir     string        // base for relative --path values
}

// Builtin implements Engine without an external runtime. It understands the
// same --story, --pages and --path input as the story-book script.
type Builtin struct {
	writer      muxllm.Client
	illustrator Illustrator
	model       string
	workDir     string
}

// Compile-time interface assertion.
var _ Engine = (*Builtin)(nil)

var (
	writerTool      = Tool{Name: "story-writer", Description: "Writes a children's story split into pages"}
	illustratorTool = Tool{Name: "illustrator", Description: "Illustrates a story page"}

	pageHeading = regexp.MustCompile(`(?i)^#*\s*page\s+\d+\s*:?\s*$`)
	unsafeName  = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)
)

// NewBuiltin creates a built-in engine.
func NewBuiltin(cfg BuiltinConfig) *Builtin {
	return &Builtin{
		writer:      cfg.Writer,
		illustrator: cfg.Illustrator,
		model:       cfg.Model,
		workDir:     cfg.WorkDir,
	}
}

// Run parses the input and starts writing. The script identifier is only
// echoed in the runStart frame.
func (b *Builtin) Run(ctx context.Context, script string, opts Options) (*Run, error) {
	if b.writer == nil {
		return nil, fmt.Errorf("%w: no story writer configured", ErrEngineUnavailable)
	}

	args := ParseInput(opts.Input, "story", "pages", "path")
	pages := defaultStoryPages
	if n, err := strconv.Atoi(args["pages"]); err == nil && n > 0 {
		pages = min(n, maxStoryPages)
	}
	outDir := args["path"]
	if outDir == "" {
		outDir = defaultStoryDir
	}
	if !filepath.IsAbs(outDir) && b.workDir != "" {
		outDir = filepath.Join(b.workDir, outDir)
	}

	job := storyJob{
		runID:  uuid.NewString(),
		script: script,
		input:  opts.Input,
		prompt: args["story"],
		pages:  pages,
		outDir: outDir,
	}

	return StartRun(ctx, func(ctx context.Context, emit EmitFunc) error {
		return b.write(ctx, job, emit)
	}), nil
}

type storyJob struct {
	runID  string
	script string
	input  string
	prompt string
	pages  int
	outDir string
}

func (b *Builtin) write(ctx context.Context, job storyJob, emit EmitFunc) error {
	send := func(v map[string]any) error {
		f, err := NewFrame(v)
		if err != nil {
			return err
		}
		return emit(f)
	}

	if err := send(map[string]any{
		"type":    KindRunStart,
		"id":      job.runID,
		"program": map[string]string{"name": job.script},
		"input":   job.input,
	}); err != nil {
		return err
	}

	text, err := b.writeStory(ctx, job, send)
	if err != nil {
		return err
	}

	title, pages := splitStory(text, job.prompt)
	dir := filepath.Join(job.outDir, storyDirName(title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create story directory: %w", err)
	}

	for i, page := range pages {
		n := i + 1
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("page%d.txt", n)), []byte(page), 0o644); err != nil {
			return fmt.Errorf("write page %d: %w", n, err)
		}
		if b.illustrator == nil {
			continue
		}
		if err := b.illustrate(ctx, dir, n, title, page, send); err != nil {
			return err
		}
	}

	return send(map[string]any{
		"type":   KindRunFinish,
		"id":     job.runID,
		"output": fmt.Sprintf("Wrote %d pages of %q to %s", len(pages), title, dir),
	})
}

// writeStory streams the story text, emitting the accumulated text as
// callProgress after every delta.
func (b *Builtin) writeStory(ctx context.Context, job storyJob, send func(map[string]any) error) (string, error) {
	callID := uuid.NewString()
	if err := send(map[string]any{"type": KindCallStart, "id": callID, "tool": writerTool}); err != nil {
		return "", err
	}

	req := &muxllm.Request{
		Model:  b.model,
		System: storySystemPrompt(job.pages),
		Messages: []muxllm.Message{
			{Role: muxllm.RoleUser, Content: job.prompt},
		},
	}
	// Returning early cancels the stream so the writer stops producing.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := b.writer.CreateMessageStream(streamCtx, req)
	if err != nil {
		return "", fmt.Errorf("story writer: %w", err)
	}

	var text strings.Builder
	for evt := range stream {
		switch evt.Type {
		case muxllm.EventContentDelta:
			text.WriteString(evt.Text)
			if err := send(map[string]any{
				"type":   KindCallProgress,
				"id":     callID,
				"tool":   writerTool,
				"output": []Output{{Content: text.String()}},
			}); err != nil {
				return "", err
			}
		case muxllm.EventError:
			return "", fmt.Errorf("story writer: %w", evt.Error)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := send(map[string]any{
		"type":   KindCallFinish,
		"id":     callID,
		"tool":   writerTool,
		"output": []Output{{Content: text.String()}},
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}

func (b *Builtin) illustrate(ctx context.Context, dir string, n int, title, page string, send func(map[string]any) error) error {
	callID := uuid.NewString()
	if err := send(map[string]any{"type": KindCallStart, "id": callID, "tool": illustratorTool}); err != nil {
		return err
	}

	prompt := fmt.Sprintf("A children's book illustration for the story %q. Scene: %s", title, page)
	img, err := b.illustrator.Illustrate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("illustrate page %d: %w", n, err)
	}
	name := fmt.Sprintf("page%d.png", n)
	if err := os.WriteFile(filepath.Join(dir, name), img, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return send(map[string]any{
		"type":   KindCallFinish,
		"id":     callID,
		"tool":   illustratorTool,
		"output": []Output{{Content: name}},
	})
}

func storySystemPrompt(pages int) string {
	return fmt.Sprintf(`You write short illustrated children's stories.
Start with one line of the form "Title: <story title>".
Then write exactly %d pages. Begin each page with a line "## Page <n>" followed by one short paragraph.
Do not add anything after the last page.`, pages)
}

// splitStory extracts the title and page texts from the writer's output.
// Without page headings the whole body is a single page.
func splitStory(text, prompt string) (string, []string) {
	var title string
	var pages []string
	var current []string
	inPage := false

	flush := func() {
		if body := strings.TrimSpace(strings.Join(current, "\n")); body != "" {
			pages = append(pages, body)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if title == "" && !inPage && strings.HasPrefix(strings.ToLower(trimmed), "title:") {
			title = strings.TrimSpace(trimmed[len("title:"):])
			continue
		}
		if pageHeading.MatchString(trimmed) {
			if inPage {
				flush()
			} else {
				current = current[:0]
			}
			inPage = true
			continue
		}
		current = append(current, line)
	}
	flush()

	if title == "" {
		title = fallbackTitle(prompt)
	}
	return title, pages
}

func fallbackTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return "Untitled Story"
	}
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

// storyDirName turns a title into a directory name. Spaces are kept, which is
// why story ids arrive percent-encoded in URLs.
func storyDirName(title string) string {
	var words []string
	for _, w := range strings.Fields(unsafeName.ReplaceAllString(title, " ")) {
		if strings.Trim(w, ".") != "" {
			words = append(words, w)
		}
	}
	name := strings.Trim(strings.Join(words, " "), ".")
	if name == "" {
		return "Untitled Story"
	}
	return name
}
