package highlight

import (
	"sort"
	"unicode"

	runewidth "github.com/mattn/go-runewidth"
)

// Line is the rune range of one wrapped display line. Break characters
// (newlines and the space a line was wrapped at) belong to no line.
type Line struct {
	Start int
	End   int
}

// Layout maps rune offsets of a text to wrapped display lines.
type Layout struct {
	lines []Line
}

// NewLayout greedily wraps text at width display cells, breaking at spaces
// where possible. A width of zero or less disables wrapping.
func NewLayout(text []rune, width int) Layout {
	var lines []Line
	start := 0
	for {
		end := start
		for end < len(text) && text[end] != '\n' {
			end++
		}
		lines = wrapParagraph(lines, text, start, end, width)
		if end >= len(text) {
			break
		}
		start = end + 1
	}
	return Layout{lines: lines}
}

func wrapParagraph(lines []Line, text []rune, s, e, width int) []Line {
	if width <= 0 || s == e {
		return append(lines, Line{Start: s, End: e})
	}
	lineStart, w, lastSpace := s, 0, -1
	for i := s; i < e; i++ {
		r := text[i]
		rw := runewidth.RuneWidth(r)
		if w+rw <= width {
			if unicode.IsSpace(r) {
				lastSpace = i
			}
			w += rw
			continue
		}
		switch {
		case unicode.IsSpace(r):
			lines = append(lines, Line{Start: lineStart, End: i})
			lineStart, w, lastSpace = i+1, 0, -1
			continue
		case lastSpace > lineStart:
			lines = append(lines, Line{Start: lineStart, End: lastSpace})
			lineStart = lastSpace + 1
		case i > lineStart:
			lines = append(lines, Line{Start: lineStart, End: i})
			lineStart = i
		}
		lastSpace = -1
		w = 0
		for j := lineStart; j <= i; j++ {
			w += runewidth.RuneWidth(text[j])
			if j < i && unicode.IsSpace(text[j]) {
				lastSpace = j
			}
		}
	}
	return append(lines, Line{Start: lineStart, End: e})
}

// Lines returns the wrapped lines.
func (l Layout) Lines() []Line { return l.lines }

// Len returns the number of lines.
func (l Layout) Len() int { return len(l.lines) }

// LineOf returns the index of the line containing offset. Offsets on a break
// character map to the line before it.
func (l Layout) LineOf(offset int) int {
	if len(l.lines) == 0 {
		return 0
	}
	i := sort.Search(len(l.lines), func(i int) bool { return l.lines[i].Start > offset })
	return max(0, i-1)
}
