// Package position estimates the narrated offset between sparse backend
// progress events.
package position

import (
	"math"
	"time"
)

const (
	// DefaultBaselineCPS is the assumed speaking speed at rate 1.0.
	DefaultBaselineCPS = 14.0
	// DefaultSmoothing is the weight of a new rate observation.
	DefaultSmoothing = 0.25
	// DefaultDebounce is the minimum spacing between two progress events
	// for the pair to update the rate model.
	DefaultDebounce = 30 * time.Millisecond
	// DefaultFreshness is how long an anchor is trusted before
	// extrapolation resumes.
	DefaultFreshness = 500 * time.Millisecond
)

// RateModel tracks observed characters per second.
type RateModel struct {
	Smoothing float64
	Debounce  time.Duration

	cps float64
}

// NewRateModel returns a model seeded with cps.
func NewRateModel(cps float64) RateModel {
	return RateModel{Smoothing: DefaultSmoothing, Debounce: DefaultDebounce, cps: cps}
}

// CPS returns the current estimate.
func (r RateModel) CPS() float64 { return r.cps }

// Reseed discards history and sets the estimate to cps.
func (r *RateModel) Reseed(cps float64) { r.cps = cps }

// Observe folds chars spoken over elapsed into the estimate. Observations
// closer together than the debounce, or without forward progress, are
// ignored. It reports whether the estimate changed.
func (r *RateModel) Observe(chars int, elapsed time.Duration) bool {
	if chars <= 0 || elapsed <= r.Debounce {
		return false
	}
	inst := float64(chars) / elapsed.Seconds()
	r.cps = (1-r.Smoothing)*r.cps + r.Smoothing*inst
	return true
}

// Config tunes an Estimator.
type Config struct {
	BaselineCPS float64
	Smoothing   float64
	Debounce    time.Duration
	Freshness   time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		BaselineCPS: DefaultBaselineCPS,
		Smoothing:   DefaultSmoothing,
		Debounce:    DefaultDebounce,
		Freshness:   DefaultFreshness,
	}
}

// Estimator holds the best guess of the narrated offset. The estimate never
// moves backward within a session and stays inside [0, text length].
type Estimator struct {
	cfg  Config
	rate RateModel

	textLen int
	limit   int // end of the chunk being narrated

	pos       int
	anchorPos int
	anchorAt  time.Time
	lastTick  time.Time
}

// New returns an Estimator for cfg.
func New(cfg Config) *Estimator {
	if cfg.BaselineCPS <= 0 {
		cfg.BaselineCPS = DefaultBaselineCPS
	}
	rm := NewRateModel(cfg.BaselineCPS)
	if cfg.Smoothing > 0 {
		rm.Smoothing = cfg.Smoothing
	}
	if cfg.Debounce > 0 {
		rm.Debounce = cfg.Debounce
	}
	return &Estimator{cfg: cfg, rate: rm}
}

// Reset starts a new session at pos.
func (e *Estimator) Reset(textLen, pos int) {
	e.textLen = max(0, textLen)
	e.pos = clamp(pos, 0, e.textLen)
	e.anchorPos = e.pos
	e.limit = e.textLen
	e.anchorAt = time.Time{}
	e.lastTick = time.Time{}
}

// Position returns the estimate.
func (e *Estimator) Position() int { return e.pos }

// CPS returns the rate model's current estimate.
func (e *Estimator) CPS() float64 { return e.rate.CPS() }

// Reseed resets the rate model to baseline speed at rate.
func (e *Estimator) Reseed(rate float64) {
	e.rate.Reseed(e.cfg.BaselineCPS * rate)
}

// ChunkStarted anchors the estimate at the start of a chunk [start, end) and
// reseeds the rate model for rate.
func (e *Estimator) ChunkStarted(start, end int, rate float64, now time.Time) {
	e.Reseed(rate)
	e.limit = clamp(end, 0, e.textLen)
	e.anchorPos = clamp(start, 0, e.textLen)
	e.anchorAt = now
	e.lastTick = now
	e.pos = max(e.pos, e.anchorPos)
}

// Progress records a backend boundary at absolute offset abs. The rate model
// learns from the distance to the previous anchor.
func (e *Estimator) Progress(abs int, now time.Time) {
	abs = clamp(abs, 0, e.textLen)
	if !e.anchorAt.IsZero() {
		e.rate.Observe(abs-e.anchorPos, now.Sub(e.anchorAt))
	}
	e.anchorPos = abs
	e.anchorAt = now
	e.pos = max(e.pos, abs)
}

// Tick extrapolates once the last anchor is stale. It reports whether the
// estimate moved.
func (e *Estimator) Tick(now time.Time) bool {
	dt := now.Sub(e.lastTick)
	e.lastTick = now
	if e.anchorAt.IsZero() || now.Sub(e.anchorAt) <= e.cfg.Freshness {
		return false
	}
	delta := max(1, int(math.Floor(e.rate.CPS()*dt.Seconds())))
	ceiling := max(0, min(e.limit, e.textLen)-1)
	next := min(e.pos+delta, ceiling)
	if next <= e.pos {
		return false
	}
	e.pos = next
	return true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
