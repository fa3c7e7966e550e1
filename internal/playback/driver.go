// Package playback drives a narration backend through a long text in chunks
// and keeps a running estimate of the narrated offset.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/chunk"
	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/observe"
	"github.com/dgnsrekt/recite/internal/position"
	"github.com/dgnsrekt/recite/internal/prefs"
	"github.com/dgnsrekt/recite/internal/speech"
)

// Status messages shown to the user.
const (
	StatusReady       = "Ready"
	StatusSpeaking    = "Speaking"
	StatusStopped     = "Stopped, resume to continue"
	StatusFinished    = "Finished"
	StatusRetrying    = "Backend error, retrying with a shorter chunk"
	StatusFailed      = "Narration failed, resume to retry or reload the text"
	StatusUnavailable = "Narration backend unavailable"
	StatusRetuning    = "Applying voice settings"
	StatusEmpty       = "Nothing to read"
)

// Config tunes a Driver.
type Config struct {
	Chunker  chunk.Chunker
	Position position.Config

	TickInterval time.Duration // extrapolation tick while speaking
	RetryDelay   time.Duration // wait before re-issuing a shortened chunk
	RetuneDelay  time.Duration // settle time before replaying after a retune

	// WatchdogFactor enables the stall watchdog when positive. A request
	// that stays silent for factor times its expected duration plus
	// WatchdogGrace is treated as a backend error.
	WatchdogFactor float64
	WatchdogGrace  time.Duration

	Voice string
}

// DefaultConfig returns the stock tuning. The watchdog is off.
func DefaultConfig() Config {
	return Config{
		Chunker:       chunk.Default(),
		Position:      position.DefaultConfig(),
		TickInterval:  80 * time.Millisecond,
		RetryDelay:    60 * time.Millisecond,
		RetuneDelay:   40 * time.Millisecond,
		WatchdogGrace: 2 * time.Second,
	}
}

// Painter displays the narrated offset.
type Painter interface {
	Show(offset int)
}

// Snapshot is a read-only view of the driver.
type Snapshot struct {
	State         State
	Position      int
	TextLen       int
	Chunk         chunk.Chunk
	ResumeVisible bool
	ResumeAt      int
	Status        string
	Err           error
	Prefs         prefs.Preferences
}

// Driver owns playback. All methods must be called from the event goroutine
// of its loop; backend callbacks are posted there.
type Driver struct {
	cfg     Config
	backend speech.Backend
	loop    loop.Loop
	painter Painter
	metrics *observe.Metrics
	logger  *log.Logger

	sm    *stateMachine
	est   *position.Estimator
	text  []rune
	prefs prefs.Preferences

	req     uint64 // generation of the request in flight
	cur     chunk.Chunk
	attempt int

	resumeAt      int
	resumeVisible bool
	status        string
	lastErr       error

	tick     loop.Timer
	retry    loop.Timer
	watchdog loop.Timer
}

// Option configures a Driver.
type Option func(*Driver)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option { return func(d *Driver) { d.cfg = cfg } }

// WithPainter sets where the estimate is displayed.
func WithPainter(p Painter) Option { return func(d *Driver) { d.painter = p } }

// WithMetrics enables metrics.
func WithMetrics(m *observe.Metrics) Option { return func(d *Driver) { d.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(d *Driver) { d.logger = l } }

// WithPreferences sets the initial rate and pitch.
func WithPreferences(p prefs.Preferences) Option {
	return func(d *Driver) { d.prefs = p.Sanitize() }
}

// New returns an idle Driver with no text.
func New(b speech.Backend, l loop.Loop, opts ...Option) *Driver {
	d := &Driver{
		cfg:     DefaultConfig(),
		backend: b,
		loop:    l,
		logger:  log.Default(),
		prefs:   prefs.Defaults(),
		sm:      newStateMachine(),
		status:  StatusReady,
	}
	for _, o := range opts {
		o(d)
	}
	d.est = position.New(d.cfg.Position)
	return d
}

// Load replaces the narration text. Anything in flight is cancelled.
func (d *Driver) Load(text string) {
	d.invalidate()
	d.backend.CancelAll()
	d.text = []rune(text)
	d.sm.reset()
	d.cur = chunk.Chunk{}
	d.resumeAt, d.resumeVisible = 0, false
	d.est.Reset(len(d.text), 0)
	d.setStatus(StatusReady, nil)
}

// Text returns the narration text.
func (d *Driver) Text() []rune { return d.text }

// State returns the playback state.
func (d *Driver) State() State { return d.sm.current }

// ResumeVisible reports whether the resume affordance is shown.
func (d *Driver) ResumeVisible() bool { return d.resumeVisible }

// Preferences returns the active rate and pitch.
func (d *Driver) Preferences() prefs.Preferences { return d.prefs }

// Snapshot returns the current view.
func (d *Driver) Snapshot() Snapshot {
	return Snapshot{
		State:         d.sm.current,
		Position:      d.est.Position(),
		TextLen:       len(d.text),
		Chunk:         d.cur,
		ResumeVisible: d.resumeVisible,
		ResumeAt:      d.resumeAt,
		Status:        d.status,
		Err:           d.lastErr,
		Prefs:         d.prefs,
	}
}

// Play cancels whatever is in flight and narrates from offset from.
func (d *Driver) Play(from int) {
	d.invalidate()
	d.backend.CancelAll()
	from = max(0, from)
	if from >= len(d.text) {
		d.setState(Idle)
		d.resumeVisible = false
		d.setStatus(StatusEmpty, nil)
		return
	}
	d.resumeVisible = false
	d.est.Reset(len(d.text), from)
	d.setState(Speaking)
	d.logger.Debug("play", "from", from, "len", len(d.text))
	d.speak(from, 0)
}

// Stop pauses narration and remembers where it was.
func (d *Driver) Stop() {
	if d.sm.current != Speaking {
		return
	}
	d.invalidate()
	d.backend.CancelAll()
	d.setState(Paused)
	d.resumeAt = d.est.Position()
	d.resumeVisible = true
	d.setStatus(StatusStopped, nil)
	d.logger.Debug("stopped", "at", d.resumeAt)
}

// Resume continues from the remembered point.
func (d *Driver) Resume() {
	switch d.sm.current {
	case Paused, Erroring:
	default:
		if !d.resumeVisible {
			return
		}
	}
	d.Play(d.resumeAt)
}

// Retune applies new voice parameters. While speaking, narration restarts
// from the current estimate after a short settle delay.
func (d *Driver) Retune(p prefs.Preferences) {
	d.prefs = p.Sanitize()
	d.est.Reseed(d.prefs.Rate)
	if d.sm.current != Speaking {
		return
	}
	from := d.est.Position()
	d.invalidate()
	d.backend.CancelAll()
	d.setStatus(StatusRetuning, nil)
	id := d.req
	d.retry = d.loop.AfterFunc(d.cfg.RetuneDelay, func() {
		if id != d.req || d.sm.current != Speaking {
			return
		}
		d.retry = nil
		d.Play(from)
	})
}

func (d *Driver) speak(start, preferred int) {
	c, ok := d.cfg.Chunker.Next(len(d.text), start, preferred)
	if !ok {
		d.finish()
		return
	}
	d.req++
	id := d.req
	d.cur, d.attempt = c, c.Len()

	u := speech.Utterance{
		Text:   c.Slice(d.text),
		Rate:   d.prefs.Rate,
		Pitch:  d.prefs.Pitch,
		Volume: 1,
		Voice:  d.cfg.Voice,
	}
	d.metrics.RecordUtterance(context.Background(), c.Len())
	d.logger.Debug("speaking chunk", "start", c.Start, "end", c.End, "req", id)
	d.armWatchdog()

	if err := d.backend.Speak(u, d.events(id)); err != nil {
		d.onError(err)
	}
}

func (d *Driver) events(id uint64) speech.Events {
	return speech.Events{
		OnStart: func() {
			d.loop.Post(func() {
				if !d.stale(id, "start") {
					d.onStart()
				}
			})
		},
		OnProgress: func(i int) {
			d.loop.Post(func() {
				if !d.stale(id, "progress") {
					d.onProgress(i)
				}
			})
		},
		OnEnd: func() {
			d.loop.Post(func() {
				if !d.stale(id, "end") {
					d.onEnd()
				}
			})
		},
		OnError: func(err error) {
			d.loop.Post(func() {
				if !d.stale(id, "error") {
					d.onError(err)
				}
			})
		},
	}
}

func (d *Driver) stale(id uint64, event string) bool {
	if id == d.req {
		return false
	}
	d.metrics.RecordStale(context.Background(), event)
	d.logger.Debug("dropping callback", "event", event, "req", id, "current", d.req, "error", ErrStaleCallback)
	return true
}

func (d *Driver) onStart() {
	d.est.ChunkStarted(d.cur.Start, d.cur.End, d.prefs.Rate, d.loop.Now())
	d.paint()
	d.startTick()
	d.armWatchdog()
	d.setStatus(StatusSpeaking, nil)
}

func (d *Driver) onProgress(i int) {
	abs := max(d.cur.Start, min(d.cur.Start+i, d.cur.End))
	d.est.Progress(abs, d.loop.Now())
	d.paint()
	d.armWatchdog()
}

func (d *Driver) onEnd() {
	d.stopTimers()
	if d.sm.current == Paused {
		d.resumeVisible = true
		return
	}
	if d.cur.End < len(d.text) {
		d.speak(d.cur.End, 0)
		return
	}
	d.finish()
}

func (d *Driver) onError(err error) {
	d.stopTimers()
	if d.sm.current != Speaking {
		return
	}
	nerr := &NarrationError{
		Err:       err,
		Component: "backend",
		Action:    "speak",
		Offset:    d.cur.Start,
		Length:    d.attempt,
	}

	switch {
	case errors.Is(err, speech.ErrUnavailable):
		d.invalidate()
		d.setState(Idle)
		d.resumeAt = d.cur.Start
		d.metrics.RecordFailure(context.Background(), "unavailable")
		d.logger.Error("narration backend unavailable", "error", nerr)
		d.setStatus(StatusUnavailable, fmt.Errorf("%w: %w", ErrBackendUnavailable, nerr))
		return
	case errors.Is(err, speech.ErrCanceled):
		// cancelled by someone else; behave as a user stop
		d.invalidate()
		d.setState(Paused)
		d.resumeAt = max(d.est.Position(), d.cur.Start)
		d.resumeVisible = true
		d.setStatus(StatusStopped, nil)
		return
	}

	next, ok := d.cfg.Chunker.Shorten(d.attempt)
	if !ok {
		d.invalidate()
		d.setState(Erroring)
		d.resumeAt = max(d.est.Position(), d.cur.Start)
		d.resumeVisible = true
		d.metrics.RecordFailure(context.Background(), "unrecoverable")
		d.logger.Error("narration failed", "error", nerr)
		d.setStatus(StatusFailed, fmt.Errorf("%w: %w", ErrUnrecoverable, nerr))
		return
	}

	d.metrics.RecordRetry(context.Background())
	d.logger.Warn("chunk failed, shortening", "start", d.cur.Start, "from", d.attempt, "to", next, "error", err)
	d.setStatus(StatusRetrying, fmt.Errorf("%w: %w", ErrChunkTooLong, nerr))

	id, start := d.req, d.cur.Start
	d.retry = d.loop.AfterFunc(d.cfg.RetryDelay, func() {
		if id != d.req || d.sm.current != Speaking {
			return
		}
		d.retry = nil
		d.backend.CancelAll()
		d.speak(start, next)
	})
}

// setState moves the state machine, leaving it untouched and logging when
// the move is not allowed.
func (d *Driver) setState(to State) bool {
	if !d.sm.transition(to) {
		d.logger.Warn("invalid playback transition", "from", d.sm.current, "to", to)
		return false
	}
	return true
}

func (d *Driver) finish() {
	d.invalidate()
	d.setState(Idle)
	d.resumeAt, d.resumeVisible = 0, false
	d.setStatus(StatusFinished, nil)
	d.logger.Debug("finished", "len", len(d.text))
}

func (d *Driver) paint() {
	if d.painter != nil {
		d.painter.Show(d.est.Position())
	}
}

func (d *Driver) setStatus(s string, err error) {
	d.status, d.lastErr = s, err
}

// invalidate makes every outstanding callback and timer stale.
func (d *Driver) invalidate() {
	d.req++
	d.stopTimers()
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
}

func (d *Driver) startTick() {
	if d.tick != nil {
		d.tick.Stop()
	}
	id := d.req
	var tick func()
	tick = func() {
		if id != d.req || d.sm.current != Speaking {
			d.tick = nil
			return
		}
		if d.est.Tick(d.loop.Now()) {
			d.paint()
		}
		d.tick = d.loop.AfterFunc(d.cfg.TickInterval, tick)
	}
	d.tick = d.loop.AfterFunc(d.cfg.TickInterval, tick)
}

func (d *Driver) armWatchdog() {
	if d.cfg.WatchdogFactor <= 0 {
		return
	}
	if d.watchdog != nil {
		d.watchdog.Stop()
	}
	cps := d.cfg.Position.BaselineCPS * d.prefs.Rate
	if cps <= 0 {
		cps = position.DefaultBaselineCPS
	}
	expected := time.Duration(float64(d.cur.Len()) / cps * d.cfg.WatchdogFactor * float64(time.Second))
	id := d.req
	d.watchdog = d.loop.AfterFunc(expected+d.cfg.WatchdogGrace, func() {
		if id != d.req {
			return
		}
		d.watchdog = nil
		d.logger.Warn("narration stalled", "start", d.cur.Start, "len", d.attempt)
		d.req++ // late events from the silent request are stale
		d.backend.CancelAll()
		d.onError(ErrStalled)
	})
}

func (d *Driver) stopTimers() {
	if d.tick != nil {
		d.tick.Stop()
		d.tick = nil
	}
	if d.watchdog != nil {
		d.watchdog.Stop()
		d.watchdog = nil
	}
}
