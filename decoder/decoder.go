// Package decoder turns chunks read from a byte stream into printable text.
//
// Two strategies exist. Buffered accumulates chunks until the whole buffer is
// valid UTF-8, so a multi-byte character split across reads is printed once it
// is complete. Chunk decodes every read on its own and fails on a split
// character; it is kept for parity with the simpler reader and is not the
// default.
package decoder

import (
	"fmt"
	"unicode/utf8"

	"github.com/nomasters/sockread/errors"
)

// Mode selects a decode strategy.
type Mode string

const (
	// ModeBuffered accumulates bytes until they decode.
	ModeBuffered Mode = "buffered"
	// ModeChunk decodes each chunk independently.
	ModeChunk Mode = "chunk"
)

// Decoder consumes chunks and reports decoded text.
//
// Decode returns ok=false when nothing is ready to print yet. Pending returns
// the bytes held back so far.
type Decoder interface {
	Decode(chunk []byte) (text string, ok bool, err error)
	Pending() []byte
}

// New returns the Decoder for mode.
func New(mode Mode) (Decoder, error) {
	switch mode {
	case ModeBuffered:
		return &Buffered{}, nil
	case ModeChunk:
		return &Chunk{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidMode, mode)
	}
}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if m != ModeBuffered && m != ModeChunk {
		return "", fmt.Errorf("%w: %q (expected %q or %q)", errors.ErrInvalidMode, s, ModeBuffered, ModeChunk)
	}
	return m, nil
}

// Buffered holds a growable receive buffer. The buffer only ever contains
// bytes that have not yet decoded as a whole.
type Buffered struct {
	buf []byte
}

// Decode appends chunk and tries to decode the whole buffer. On success the
// text is returned and the buffer is cleared; otherwise the bytes are kept.
func (b *Buffered) Decode(chunk []byte) (string, bool, error) {
	b.buf = append(b.buf, chunk...)
	if len(b.buf) == 0 || !utf8.Valid(b.buf) {
		return "", false, nil
	}
	text := string(b.buf)
	b.buf = b.buf[:0]
	return text, true, nil
}

// Pending returns the undecoded bytes.
func (b *Buffered) Pending() []byte {
	return b.buf
}

// Chunk decodes each chunk on its own. A multi-byte character split across
// two chunks makes both halves invalid and Decode returns ErrInvalidEncoding.
type Chunk struct{}

// Decode validates chunk and returns it as text.
func (Chunk) Decode(chunk []byte) (string, bool, error) {
	if len(chunk) == 0 {
		return "", false, nil
	}
	if !utf8.Valid(chunk) {
		return "", false, fmt.Errorf("%w: %d byte chunk", errors.ErrInvalidEncoding, len(chunk))
	}
	return string(chunk), true, nil
}

// Pending always returns nil, Chunk keeps no state.
func (Chunk) Pending() []byte {
	return nil
}
