// Package chunk splits narration text into backend-sized requests.
package chunk

import (
	"errors"
	"fmt"
)

const (
	// DefaultMax is the longest request sent to a backend.
	DefaultMax = 900
	// DefaultMin is the floor used when shortening after a failure.
	DefaultMin = 400
)

// ErrInvalidBounds is returned by New for unusable limits.
var ErrInvalidBounds = errors.New("invalid chunk bounds")

// Chunk is the half-open rune range [Start, End) of the narration text.
type Chunk struct {
	Start int
	End   int
}

// Len returns the number of runes in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Slice returns the chunk's portion of text.
func (c Chunk) Slice(text []rune) string {
	return string(text[c.Start:c.End])
}

// Chunker computes fixed-length chunks. Boundaries are not sentence or word
// aware.
type Chunker struct {
	Min int
	Max int
}

// Default returns a Chunker with the default limits.
func Default() Chunker {
	return Chunker{Min: DefaultMin, Max: DefaultMax}
}

// New validates and returns a Chunker.
func New(minLen, maxLen int) (Chunker, error) {
	if minLen <= 0 || maxLen < minLen {
		return Chunker{}, fmt.Errorf("%w: min=%d max=%d", ErrInvalidBounds, minLen, maxLen)
	}
	return Chunker{Min: minLen, Max: maxLen}, nil
}

// Next returns the chunk starting at start. preferred of zero means Max.
// Preferred lengths below Min are raised to Min and above Max are lowered to
// Max; the result is truncated at the end of the text. ok is false when start
// is at or past the end of the text.
func (c Chunker) Next(textLen, start, preferred int) (Chunk, bool) {
	if start < 0 {
		start = 0
	}
	if start >= textLen {
		return Chunk{Start: textLen, End: textLen}, false
	}
	if preferred <= 0 {
		preferred = c.Max
	}
	n := max(c.Min, min(preferred, c.Max, textLen-start))
	return Chunk{Start: start, End: min(textLen, start+n)}, true
}

// Shorten returns the length to retry with after a chunk of length n failed.
// ok is false when the result would not be strictly shorter, meaning the
// failure is unrecoverable by shortening.
func (c Chunker) Shorten(n int) (next int, ok bool) {
	next = max(c.Min, n/2)
	return next, next < n
}
