// Package highlight marks the word being narrated and keeps it on screen.
package highlight

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/recite/internal/loop"
	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the minimum time between repaints.
	DefaultInterval = 100 * time.Millisecond
	// DefaultMargin is how many lines from the viewport edge trigger a
	// re-centre.
	DefaultMargin = 2
)

// DefaultStyle is the highlight style.
var DefaultStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#1B1B1B", Dark: "#1B1B1B"}).
	Background(lipgloss.AdaptiveColor{Light: "#FFD75F", Dark: "#FFD75F"})

// Renderer owns the highlighted span and the viewport offset. It is used
// from the event goroutine only.
type Renderer struct {
	loop    loop.Loop
	limiter *rate.Limiter
	style   lipgloss.Style
	margin  int

	text    []rune
	layout  Layout
	width   int
	height  int
	yOffset int

	span    Span
	version uint64

	pending    int
	hasPending bool
	trailing   loop.Timer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithInterval sets the repaint interval.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) { r.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithStyle sets the highlight style.
func WithStyle(s lipgloss.Style) Option {
	return func(r *Renderer) { r.style = s }
}

// WithMargin sets the edge margin in lines.
func WithMargin(n int) Option {
	return func(r *Renderer) { r.margin = max(0, n) }
}

// NewRenderer returns an empty Renderer.
func NewRenderer(l loop.Loop, opts ...Option) *Renderer {
	r := &Renderer{
		loop:    l,
		limiter: rate.NewLimiter(rate.Every(DefaultInterval), 1),
		style:   DefaultStyle,
		margin:  DefaultMargin,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetText replaces the text, clears the highlight and scrolls to the top.
func (r *Renderer) SetText(text []rune) {
	r.text = text
	r.layout = NewLayout(text, r.width)
	r.span = Span{}
	r.yOffset = 0
	r.cancelTrailing()
	r.version++
}

// Resize re-wraps the text for a new viewport size.
func (r *Renderer) Resize(width, height int) {
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	r.layout = NewLayout(r.text, width)
	if !r.span.Empty() {
		r.scrollTo(r.layout.LineOf(r.span.Start))
	}
	r.version++
}

// SetYOffset records a user scroll.
func (r *Renderer) SetYOffset(y int) { r.yOffset = r.clampOffset(y) }

// YOffset returns the first visible line.
func (r *Renderer) YOffset() int { return r.yOffset }

// Span returns the highlighted span.
func (r *Renderer) Span() Span { return r.span }

// Version changes whenever Content would render differently.
func (r *Renderer) Version() uint64 { return r.version }

// Layout returns the current wrap layout.
func (r *Renderer) Layout() Layout { return r.layout }

// TopOffset returns the rune offset of the first visible line.
func (r *Renderer) TopOffset() int {
	lines := r.layout.Lines()
	if len(lines) == 0 {
		return 0
	}
	return lines[min(r.yOffset, len(lines)-1)].Start
}

// Show highlights the word at offset. Calls faster than the repaint interval
// are coalesced; the latest dropped offset is painted when the interval
// allows.
func (r *Renderer) Show(offset int) {
	now := r.loop.Now()
	if r.limiter.AllowN(now, 1) {
		r.paint(offset)
		return
	}
	r.pending, r.hasPending = offset, true
	if r.trailing == nil {
		r.trailing = r.loop.AfterFunc(r.untilNextToken(now), r.flush)
	}
}

// Clear removes the highlight.
func (r *Renderer) Clear() {
	r.cancelTrailing()
	if !r.span.Empty() {
		r.span = Span{}
		r.version++
	}
}

func (r *Renderer) flush() {
	r.trailing = nil
	if !r.hasPending {
		return
	}
	now := r.loop.Now()
	if !r.limiter.AllowN(now, 1) {
		r.trailing = r.loop.AfterFunc(r.untilNextToken(now), r.flush)
		return
	}
	r.paint(r.pending)
}

func (r *Renderer) cancelTrailing() {
	if r.trailing != nil {
		r.trailing.Stop()
		r.trailing = nil
	}
	r.hasPending = false
}

func (r *Renderer) untilNextToken(now time.Time) time.Duration {
	missing := 1 - r.limiter.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	secs := missing / float64(r.limiter.Limit())
	return time.Duration(math.Ceil(secs*float64(time.Second))) + time.Millisecond
}

func (r *Renderer) paint(offset int) {
	r.hasPending = false
	if len(r.text) == 0 {
		return
	}
	span := WordAt(r.text, offset)
	if span != r.span {
		r.span = span
		r.version++
	}
	r.scrollTo(r.layout.LineOf(span.Start))
}

// scrollTo centres line when it is outside the viewport or inside the edge
// margin.
func (r *Renderer) scrollTo(line int) {
	if r.height <= 0 {
		return
	}
	margin := min(r.margin, (r.height-1)/2)
	if line >= r.yOffset+margin && line < r.yOffset+r.height-margin {
		return
	}
	y := r.clampOffset(line - r.height/2)
	if y != r.yOffset {
		r.yOffset = y
		r.version++
	}
}

func (r *Renderer) clampOffset(y int) int {
	return max(0, min(y, r.layout.Len()-r.height))
}

// Content renders every wrapped line with the highlight applied.
func (r *Renderer) Content() string {
	var b strings.Builder
	for i, l := range r.layout.Lines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		s, e := max(l.Start, r.span.Start), min(l.End, r.span.End)
		if r.span.Empty() || s >= e {
			b.WriteString(string(r.text[l.Start:l.End]))
			continue
		}
		b.WriteString(string(r.text[l.Start:s]))
		b.WriteString(r.style.Render(string(r.text[s:e])))
		b.WriteString(string(r.text[e:l.End]))
	}
	return b.String()
}
