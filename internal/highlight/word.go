package highlight

import "unicode"

// Span is a half-open rune range [Start, End).
type Span struct {
	Start int
	End   int
}

// Empty reports whether the span covers nothing.
func (s Span) Empty() bool { return s.End <= s.Start }

// Contains reports whether i falls inside the span.
func (s Span) Contains(i int) bool { return i >= s.Start && i < s.End }

// WordAt returns the whitespace-delimited word around offset. For non-empty
// text the span is never empty and Start <= offset <= End holds; an offset
// sitting on whitespace yields a one-rune span.
func WordAt(text []rune, offset int) Span {
	n := len(text)
	if n == 0 {
		return Span{}
	}
	offset = max(0, min(offset, n))

	start := offset
	for start > 0 && !unicode.IsSpace(text[start-1]) {
		start--
	}
	end := offset
	for end < n && !unicode.IsSpace(text[end]) {
		end++
	}
	if end > start {
		return Span{Start: start, End: end}
	}
	if start < n {
		return Span{Start: start, End: start + 1}
	}
	return Span{Start: n - 1, End: n}
}
