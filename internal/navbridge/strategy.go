package navbridge

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by channels after Close.
var ErrClosed = errors.New("command channel closed")

// ErrFull is returned by MemChannel.Inject when the inbound buffer is full.
var ErrFull = errors.New("command channel full")

// Host can run navigation directly, without a message round trip.
type Host interface {
	// Invoke runs a. It reports false when the host has no handler for a.
	Invoke(a Action) bool
}

// HostFunc adapts a function to Host.
type HostFunc func(a Action) bool

func (f HostFunc) Invoke(a Action) bool { return f(a) }

// Direct delivers commands by invoking the host.
type Direct struct {
	Host Host
}

func (d Direct) Name() string { return "host" }

func (d Direct) Deliver(_ context.Context, c Command) (bool, error) {
	if d.Host == nil {
		return false, nil
	}
	return d.Host.Invoke(c.Action), nil
}

// Channel is a bidirectional command channel to the host.
type Channel interface {
	Send(ctx context.Context, c Command) error
	// Receive yields inbound commands until the channel closes.
	Receive() <-chan Command
	Close() error
}

// Posted delivers commands over a Channel.
type Posted struct {
	Channel Channel
}

func (p Posted) Name() string { return "channel" }

func (p Posted) Deliver(ctx context.Context, c Command) (bool, error) {
	if p.Channel == nil {
		return false, nil
	}
	if err := p.Channel.Send(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// MemChannel is an in-process Channel. Sent commands appear on Sent; commands
// pushed with Inject appear on Receive.
type MemChannel struct {
	mu     sync.Mutex
	sent   chan Command
	in     chan Command
	closed bool
}

// NewMemChannel returns a MemChannel with the given buffer size.
func NewMemChannel(size int) *MemChannel {
	return &MemChannel{sent: make(chan Command, size), in: make(chan Command, size)}
}

func (m *MemChannel) Send(ctx context.Context, c Command) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case m.sent <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemChannel) Receive() <-chan Command { return m.in }

// Sent returns commands written with Send.
func (m *MemChannel) Sent() <-chan Command { return m.sent }

// Inject queues an inbound command without blocking.
func (m *MemChannel) Inject(c Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.in <- c:
		return nil
	default:
		return ErrFull
	}
}

func (m *MemChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.in)
	}
	return nil
}
