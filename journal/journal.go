// ABOUTME: Append-only JSONL journal of relay runs for durable run history.
// ABOUTME: Provides locked fsynced append, sequential replay, and repair for files with a torn last line.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry summarizes one relay run.
type Entry struct {
	RunID      string    `json:"run_id"`
	Script     string    `json:"script"`
	Input      string    `json:"input"`
	Outcome    string    `json:"outcome"`
	Frames     int       `json:"frames"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Log is an append-only JSONL journal backed by a file. Each line is a
// single JSON-serialized Entry followed by a newline. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (or creates) the journal at path. Parent directories are
// created, and an existing file is repaired first so appends never follow a
// torn line.
func Open(path string) (*Log, error) {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create parent dirs: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := Repair(path); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Log{path: path, file: file}, nil
}

// Path returns the path to the underlying JSONL file.
func (l *Log) Path() string {
	return l.path
}

// Append writes e as one JSON line and fsyncs it.
func (l *Log) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write entry line: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Replay reads every entry from the journal at path, oldest first. Empty
// lines are skipped. A missing file yields no entries.
func Replay(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal for replay: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	err = eachLine(file, func(line string) error {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("parse journal line: %w", err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Repair keeps only complete, parseable lines of the journal at path,
// replacing the file through a temp file and rename. Returns the number of
// entries retained.
func Repair(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open journal for repair: %w", err)
	}

	var valid []string
	dropped := 0
	err = eachLine(file, func(line string) error {
		var e Entry
		if json.Unmarshal([]byte(line), &e) == nil {
			valid = append(valid, line)
		} else {
			dropped++
		}
		return nil
	})
	_ = file.Close()
	if err != nil {
		return 0, fmt.Errorf("repair: %w", err)
	}

	if dropped == 0 {
		return len(valid), nil
	}

	tmpPath := path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	for _, line := range valid {
		if _, err := fmt.Fprintln(tmp, line); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return 0, fmt.Errorf("write valid line: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync temp file: %w", err)
	}
	_ = tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("rename temp to original: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return len(valid), nil
}

// eachLine calls fn for every non-blank line in r. Lines have no length
// limit: inputs carry whole story prompts, and JSON escaping can grow them
// well past the request size.
func eachLine(r io.Reader, fn func(line string) error) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadBytes('\n')
		if line := strings.TrimSpace(string(raw)); line != "" {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
	}
}
