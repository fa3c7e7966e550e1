// Package navbridge maps playback shortcuts to local actions and to
// navigation commands for whatever hosts the narrator.
package navbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/observe"
	"github.com/dgnsrekt/recite/internal/playback"
	"github.com/google/uuid"
)

// Action is the command kind.
type Action string

const (
	Prev   Action = "prev"
	Next   Action = "next"
	Toggle Action = "toggle"
)

// Addressing used on the command channel.
const (
	SourceNarrator = "recite-narrator"
	SourceHost     = "recite-host"
	TargetNarrator = "narrator"
)

// ErrUndelivered is returned when no strategy accepted a command.
var ErrUndelivered = errors.New("navigation command not delivered")

// Command is the message exchanged with the host.
type Command struct {
	Source  string `json:"source"`
	Target  string `json:"target,omitempty"`
	Action  Action `json:"action"`
	Session string `json:"session,omitempty"`
}

// Player is the part of the playback driver the bridge controls.
type Player interface {
	State() playback.State
	ResumeVisible() bool
	Play(from int)
	Stop()
	Resume()
}

// Strategy is one way of delivering a command to the host. Deliver reports
// false when the strategy cannot reach the host.
type Strategy interface {
	Name() string
	Deliver(ctx context.Context, c Command) (bool, error)
}

// KeyMap holds the shortcut key names, as reported by bubbletea.
type KeyMap struct {
	Toggle string
	Prev   string
	Next   string
}

// DefaultKeyMap returns F8 toggle, F7 previous, F9 next.
func DefaultKeyMap() KeyMap {
	return KeyMap{Toggle: "f8", Prev: "f7", Next: "f9"}
}

const deliverTimeout = 2 * time.Second

// Bridge is used from the event goroutine.
type Bridge struct {
	player     Player
	strategies []Strategy
	keys       KeyMap
	session    string
	metrics    *observe.Metrics
	logger     *log.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithStrategies sets the delivery strategies, tried in order.
func WithStrategies(s ...Strategy) Option {
	return func(b *Bridge) { b.strategies = append(b.strategies, s...) }
}

// WithKeyMap overrides the default shortcuts. Empty fields keep defaults.
func WithKeyMap(k KeyMap) Option {
	return func(b *Bridge) {
		if k.Toggle != "" {
			b.keys.Toggle = k.Toggle
		}
		if k.Prev != "" {
			b.keys.Prev = k.Prev
		}
		if k.Next != "" {
			b.keys.Next = k.Next
		}
	}
}

// WithMetrics enables command metrics.
func WithMetrics(m *observe.Metrics) Option { return func(b *Bridge) { b.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(b *Bridge) { b.logger = l } }

// New returns a Bridge controlling p.
func New(p Player, opts ...Option) *Bridge {
	b := &Bridge{
		player:  p,
		keys:    DefaultKeyMap(),
		session: uuid.NewString(),
		logger:  log.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Keys returns the active key map.
func (b *Bridge) Keys() KeyMap { return b.keys }

// Session returns the id stamped on outgoing commands.
func (b *Bridge) Session() string { return b.session }

// HandleKey runs the action bound to key. It reports whether key is a
// shortcut.
func (b *Bridge) HandleKey(key string) bool {
	switch key {
	case b.keys.Toggle:
		b.Toggle()
	case b.keys.Prev:
		b.navigate(Prev)
	case b.keys.Next:
		b.navigate(Next)
	default:
		return false
	}
	return true
}

// Toggle resumes, stops or starts playback depending on its state.
func (b *Bridge) Toggle() {
	switch {
	case b.player.ResumeVisible():
		b.player.Resume()
	case b.player.State() == playback.Speaking:
		b.player.Stop()
	case b.player.State() == playback.Paused:
		b.player.Resume()
	default:
		b.player.Play(0)
	}
}

func (b *Bridge) navigate(a Action) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := b.Navigate(ctx, a); err != nil {
		b.logger.Warn("navigation failed", "action", a, "error", err)
	}
}

// Navigate sends a prev or next command through the first strategy that
// accepts it.
func (b *Bridge) Navigate(ctx context.Context, a Action) error {
	c := Command{Source: SourceNarrator, Action: a, Session: b.session}
	var errs []error
	for _, s := range b.strategies {
		ok, err := s.Deliver(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if ok {
			b.metrics.RecordCommand(ctx, string(a), s.Name())
			b.logger.Debug("navigation delivered", "action", a, "via", s.Name())
			return nil
		}
	}
	return errors.Join(append([]error{ErrUndelivered}, errs...)...)
}

// HandleInbound applies a command from the host. Only toggles addressed to
// the narrator are accepted. It reports whether c was applied.
func (b *Bridge) HandleInbound(c Command) bool {
	if c.Source != SourceHost || c.Target != TargetNarrator || c.Action != Toggle {
		b.logger.Debug("ignoring inbound command", "source", c.Source, "target", c.Target, "action", c.Action)
		return false
	}
	b.Toggle()
	return true
}
