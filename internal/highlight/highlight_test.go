package highlight

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/recite/internal/loop"
)

func TestWordAt(t *testing.T) {
	tests := []struct {
		text   string
		offset int
		want   Span
	}{
		{"Hello world foo bar", 6, Span{6, 11}},
		{"Hello world foo bar", 8, Span{6, 11}},
		{"Hello world foo bar", 0, Span{0, 5}},
		{"Hello world foo bar", 5, Span{0, 5}},
		{"Hello world foo bar", 19, Span{16, 19}},
		{"Hello world foo bar", 99, Span{16, 19}},
		{"Hello world foo bar", -4, Span{0, 5}},
		{"a  b", 2, Span{2, 3}},
		{"trailing ", 9, Span{8, 9}},
		{"   ", 1, Span{1, 2}},
		{"Xin chào", 6, Span{4, 8}},
		{"line\nnext", 5, Span{5, 9}},
		{"", 0, Span{}},
	}
	for _, tt := range tests {
		got := WordAt([]rune(tt.text), tt.offset)
		if got != tt.want {
			t.Errorf("WordAt(%q, %d) = %v, want %v", tt.text, tt.offset, got, tt.want)
		}
	}
}

func TestWordAtContainsOffset(t *testing.T) {
	text := []rune("The quick  brown\tfox\n\njumps over  ")
	for o := 0; o <= len(text); o++ {
		s := WordAt(text, o)
		if s.Empty() {
			t.Fatalf("empty span at %d", o)
		}
		if s.Start > o || o > s.End {
			t.Fatalf("span %v does not bracket %d", s, o)
		}
		if s.End > len(text) || s.Start < 0 {
			t.Fatalf("span %v out of range", s)
		}
	}
}

func lineStrings(text string, width int) []string {
	r := []rune(text)
	var out []string
	for _, l := range NewLayout(r, width).Lines() {
		out = append(out, string(r[l.Start:l.End]))
	}
	return out
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"wraps at space", "hello world foo", 8, []string{"hello", "world", "foo"}},
		{"space at edge", "abcd efgh", 4, []string{"abcd", "efgh"}},
		{"hard break", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"newlines", "a\n\nb", 10, []string{"a", "", "b"}},
		{"no wrap", "hello world", 0, []string{"hello world"}},
		{"wide runes", "日本語です", 4, []string{"日本", "語で", "す"}},
		{"empty", "", 10, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lineStrings(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineOf(t *testing.T) {
	l := NewLayout([]rune("hello world foo"), 8) // [0,5) [6,11) [12,15)
	tests := map[int]int{0: 0, 4: 0, 5: 0, 6: 1, 11: 1, 12: 2, 15: 2}
	for offset, want := range tests {
		if got := l.LineOf(offset); got != want {
			t.Errorf("LineOf(%d) = %d, want %d", offset, got, want)
		}
	}
}

func newTestRenderer(text string, w, h int) (*Renderer, *loop.Manual) {
	l := loop.NewManual(time.Unix(0, 0))
	r := NewRenderer(l, WithStyle(lipgloss.NewStyle()))
	r.Resize(w, h)
	r.SetText([]rune(text))
	return r, l
}

func TestShowThrottle(t *testing.T) {
	r, l := newTestRenderer("alpha beta gamma delta", 80, 5)

	r.Show(0)
	if r.Span() != (Span{0, 5}) {
		t.Fatalf("first paint: %v", r.Span())
	}
	l.Advance(30 * time.Millisecond)
	r.Show(6)
	l.Advance(10 * time.Millisecond)
	r.Show(11)
	if r.Span() != (Span{0, 5}) {
		t.Fatalf("throttled paints leaked: %v", r.Span())
	}
	if l.Pending() != 1 {
		t.Fatalf("expected a single trailing repaint, got %d", l.Pending())
	}

	l.Advance(70 * time.Millisecond) // t=110ms
	if r.Span() != (Span{11, 16}) {
		t.Errorf("trailing repaint should show the latest offset, got %v", r.Span())
	}

	r.Show(17)
	if r.Span() != (Span{11, 16}) {
		t.Errorf("repaint right after trailing paint must be throttled, got %v", r.Span())
	}
	l.Advance(200 * time.Millisecond)
	if r.Span() != (Span{17, 22}) {
		t.Errorf("got %v", r.Span())
	}
}

func TestPaintRate(t *testing.T) {
	r, l := newTestRenderer(strings.Repeat("word ", 400), 80, 10)
	paints := 0
	last := r.Version()
	for i := 0; i < 100; i++ { // one second of 10ms updates
		r.Show(i * 5)
		l.Advance(10 * time.Millisecond)
		if v := r.Version(); v != last {
			paints++
			last = v
		}
	}
	if paints > 11 {
		t.Errorf("%d paints in one second", paints)
	}
}

func TestScrollCentres(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, "line")
	}
	r, l := newTestRenderer(strings.Join(lines, "\n"), 80, 10)
	offsetOfLine := func(n int) int { return n * 5 }

	r.Show(offsetOfLine(3))
	if r.YOffset() != 0 {
		t.Errorf("line 3 is visible, yOffset = %d", r.YOffset())
	}

	l.Advance(time.Second)
	r.Show(offsetOfLine(8)) // inside bottom margin
	if r.YOffset() != 3 {
		t.Errorf("yOffset = %d, want 3", r.YOffset())
	}

	l.Advance(time.Second)
	r.Show(offsetOfLine(30))
	if r.YOffset() != 25 {
		t.Errorf("yOffset = %d, want 25", r.YOffset())
	}

	l.Advance(time.Second)
	r.Show(offsetOfLine(49))
	if r.YOffset() != 40 {
		t.Errorf("yOffset = %d, want 40 (clamped)", r.YOffset())
	}
	line := r.Layout().LineOf(r.Span().Start)
	if line < r.YOffset() || line >= r.YOffset()+10 {
		t.Errorf("highlight line %d not visible from %d", line, r.YOffset())
	}
}

func TestContent(t *testing.T) {
	r, _ := newTestRenderer("hello world foo", 8, 5)
	r.Show(7)
	want := "hello\nworld\nfoo"
	if got := r.Content(); got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}

	styled := NewRenderer(loop.NewManual(time.Unix(0, 0)), WithStyle(lipgloss.NewStyle().Bold(true)))
	styled.Resize(80, 5)
	styled.SetText([]rune("hello world"))
	styled.Show(0)
	if !strings.HasSuffix(styled.Content(), " world") {
		t.Errorf("unexpected content %q", styled.Content())
	}
}

func TestSetTextClears(t *testing.T) {
	r, l := newTestRenderer("one two three", 80, 5)
	r.Show(0)
	r.Show(4) // pending
	r.SetText([]rune("fresh text"))
	l.Advance(time.Second)
	if !r.Span().Empty() {
		t.Errorf("stale trailing paint applied to new text: %v", r.Span())
	}
	if r.TopOffset() != 0 {
		t.Errorf("TopOffset = %d", r.TopOffset())
	}
}
