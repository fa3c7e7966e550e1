// Package unlock gates automatic playback behind a user gesture.
//
// Some platforms refuse to narrate until a user gesture has been followed by
// a successful utterance. The handshake speaks a silent probe on the first
// gesture and holds at most one deferred autoplay request until the probe
// settles.
package unlock

import (
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/speech"
)

// State is the handshake state.
type State int

const (
	Locked State = iota
	Probing
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Probing:
		return "probing"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// DefaultProbeTimeout bounds how long a probe may stay unanswered.
const DefaultProbeTimeout = 3 * time.Second

var transitions = map[State][]State{
	Locked:  {Probing, Unlocked},
	Probing: {Unlocked},
}

// Handshake is owned by the event goroutine.
type Handshake struct {
	backend speech.Backend
	loop    loop.Loop
	logger  *log.Logger
	timeout time.Duration

	state   State
	pending func()
	timer   loop.Timer
}

// Option configures a Handshake.
type Option func(*Handshake)

// WithProbeTimeout overrides DefaultProbeTimeout. Zero disables the timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Handshake) { h.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Handshake) { h.logger = l }
}

// New returns a locked Handshake.
func New(b speech.Backend, l loop.Loop, opts ...Option) *Handshake {
	h := &Handshake{
		backend: b,
		loop:    l,
		logger:  log.Default(),
		timeout: DefaultProbeTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// State returns the current state.
func (h *Handshake) State() State { return h.state }

// Unlocked reports whether autoplay may run.
func (h *Handshake) Unlocked() bool { return h.state == Unlocked }

// Pending reports whether an autoplay request is waiting.
func (h *Handshake) Pending() bool { return h.pending != nil }

// Gesture records a user gesture. Only the first one while Locked starts a
// probe.
func (h *Handshake) Gesture() {
	if h.state != Locked {
		return
	}
	h.transition(Probing)

	u := speech.Utterance{Text: " ", Rate: 1, Pitch: 1, Volume: 0}
	ev := speech.Events{
		OnEnd: func() { h.loop.Post(func() { h.settle("end", nil) }) },
		OnError: func(err error) {
			h.loop.Post(func() { h.settle("error", err) })
		},
	}
	if err := h.backend.Speak(u, ev); err != nil {
		h.settle("refused", err)
		return
	}
	if h.timeout > 0 {
		h.timer = h.loop.AfterFunc(h.timeout, func() { h.settle("timeout", nil) })
	}
}

// RequestAutoplay runs fn now if unlocked, or stores it in the single
// deferred slot, replacing whatever was there.
func (h *Handshake) RequestAutoplay(fn func()) {
	if h.state == Unlocked {
		fn()
		return
	}
	if h.pending != nil {
		h.logger.Debug("replacing deferred autoplay")
	}
	h.pending = fn
}

// Cancel clears the deferred slot.
func (h *Handshake) Cancel() { h.pending = nil }

func (h *Handshake) settle(reason string, err error) {
	if h.state == Unlocked {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.logger.Debug("narration unlocked", "via", reason, "error", err)
	h.transition(Unlocked)

	fn := h.pending
	h.pending = nil
	if fn != nil {
		fn()
	}
}

func (h *Handshake) transition(to State) {
	if !slices.Contains(transitions[h.state], to) {
		h.logger.Warn("invalid unlock transition", "from", h.state, "to", to)
		return
	}
	h.state = to
}
