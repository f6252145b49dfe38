// ABOUTME: FrameReader splits a relay byte stream into "event: " payloads using a stateful UTF-8 decoder.
// ABOUTME: Partial runes and partial frames are carried across reads so chunk boundaries never corrupt events.
package reducer

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	frameDelimiter = "\n\n"
	eventPrefix    = "event: "
	readChunkSize  = 4096
)

// FrameReader yields the JSON payload of each SSE frame in a stream.
type FrameReader struct {
	src     io.Reader
	buf     []byte
	carry   string
	pending []string
	err     error
}

// NewFrameReader wraps r. The UTF-8 decoder is created once and reused for
// every read; invalid bytes decode to U+FFFD.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		src: transform.NewReader(r, unicode.UTF8.NewDecoder()),
		buf: make([]byte, readChunkSize),
	}
}

// Next returns the next payload with the "event: " prefix removed. It
// returns io.EOF once the stream is exhausted; any other error is the
// underlying read error, reported after the payloads read before it.
func (fr *FrameReader) Next() (string, error) {
	for len(fr.pending) == 0 {
		if fr.err != nil {
			return "", fr.err
		}
		fr.fill()
	}
	p := fr.pending[0]
	fr.pending = fr.pending[1:]
	return p, nil
}

// ReadChunk performs one read and returns every payload completed by it.
// The returned slice may be empty when the read ended mid-frame.
func (fr *FrameReader) ReadChunk() ([]string, error) {
	if len(fr.pending) == 0 && fr.err == nil {
		fr.fill()
	}
	out := fr.pending
	fr.pending = nil
	if len(out) > 0 {
		return out, nil
	}
	return nil, fr.err
}

func (fr *FrameReader) fill() {
	n, err := fr.src.Read(fr.buf)
	if n > 0 {
		text := fr.carry + string(fr.buf[:n])
		parts := strings.Split(text, frameDelimiter)
		fr.carry = parts[len(parts)-1]
		fr.queue(parts[:len(parts)-1])
	}
	if err != nil {
		// The final fragment needs no trailing delimiter.
		if fr.carry != "" {
			fr.queue([]string{fr.carry})
			fr.carry = ""
		}
		fr.err = err
	}
}

func (fr *FrameReader) queue(fragments []string) {
	for _, f := range fragments {
		if payload, ok := strings.CutPrefix(f, eventPrefix); ok {
			fr.pending = append(fr.pending, payload)
		}
	}
}
