// ABOUTME: Tests for FrameReader: chunk boundaries inside runes and frames, prefix filtering, trailing frames.
package reducer

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func readAll(t *testing.T, r io.Reader) []string {
	t.Helper()
	fr := NewFrameReader(r)
	var out []string
	for {
		p, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, p)
	}
}

const multibyteStream = "event: {\"type\":\"callProgress\",\"output\":[{\"content\":\"le chat é 🐱 ünd\"}]}\n\n" +
	"event: {\"type\":\"callStart\",\"tool\":{\"description\":\"Illustrateur ✏️\"}}\n\n" +
	"event: {\"type\":\"runFinish\"}\n\n"

func TestFrameReaderSplitAtEveryByte(t *testing.T) {
	want := readAll(t, strings.NewReader(multibyteStream))
	if len(want) != 3 {
		t.Fatalf("expected 3 payloads from whole stream, got %d", len(want))
	}

	data := []byte(multibyteStream)
	for i := 1; i < len(data); i++ {
		r := &chunkReader{chunks: [][]byte{
			append([]byte(nil), data[:i]...),
			append([]byte(nil), data[i:]...),
		}}
		got := readAll(t, r)
		if len(got) != len(want) {
			t.Fatalf("split at %d: got %d payloads, want %d", i, len(got), len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("split at %d payload %d: got %q, want %q", i, j, got[j], want[j])
			}
		}
	}
}

func TestFrameReaderDropsFragmentsWithoutPrefix(t *testing.T) {
	stream := "data: {\"type\":\"ignored\"}\n\nevent: {\"type\":\"kept\"}\n\n: comment\n\n"
	got := readAll(t, strings.NewReader(stream))
	if len(got) != 1 || got[0] != `{"type":"kept"}` {
		t.Errorf("unexpected payloads %q", got)
	}
}

func TestFrameReaderTrailingFrameWithoutDelimiter(t *testing.T) {
	got := readAll(t, strings.NewReader("event: {\"a\":1}\n\nevent: {\"b\":2}"))
	if len(got) != 2 || got[1] != `{"b":2}` {
		t.Errorf("unexpected payloads %q", got)
	}
}

func TestFrameReaderInvalidUTF8BecomesReplacement(t *testing.T) {
	got := readAll(t, strings.NewReader("event: {\"x\":\"a\xffb\"}\n\n"))
	if len(got) != 1 || got[0] != "{\"x\":\"a�b\"}" {
		t.Errorf("unexpected payloads %q", got)
	}
}

func TestFrameReaderReadChunk(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{
		[]byte("event: {\"a\":1}\n\nevent: {\"b\""),
		[]byte(":2}\n\n"),
	}}
	fr := NewFrameReader(r)

	first, err := fr.ReadChunk()
	if err != nil || len(first) != 1 {
		t.Fatalf("first chunk: got %q err=%v", first, err)
	}
	second, err := fr.ReadChunk()
	if err != nil || len(second) != 1 || second[0] != `{"b":2}` {
		t.Fatalf("second chunk: got %q err=%v", second, err)
	}
	if _, err := fr.ReadChunk(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestFrameReaderReportsReadErrorAfterPayloads(t *testing.T) {
	boom := errors.New("connection reset")
	fr := NewFrameReader(&failingReader{data: []byte("event: {\"a\":1}\n\n"), err: boom})

	if p, err := fr.Next(); err != nil || p != `{"a":1}` {
		t.Fatalf("expected payload before error, got %q err=%v", p, err)
	}
	if _, err := fr.Next(); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
