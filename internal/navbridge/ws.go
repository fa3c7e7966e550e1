package navbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
)

// WSChannel is a Channel over a websocket carrying JSON text frames.
type WSChannel struct {
	conn   *websocket.Conn
	in     chan Command
	logger *log.Logger

	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// DialWS connects to url and starts reading inbound commands.
func DialWS(ctx context.Context, url string, logger *log.Logger) (*WSChannel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("navbridge: dial %s: %w", url, err)
	}
	return newWSChannel(conn, logger), nil
}

// newWSChannel wraps an established connection.
func newWSChannel(conn *websocket.Conn, logger *log.Logger) *WSChannel {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &WSChannel{
		conn:   conn,
		in:     make(chan Command, 16),
		logger: logger,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.readLoop(ctx)
	return w
}

// Send writes c as a JSON text frame.
func (w *WSChannel) Send(ctx context.Context, c Command) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// Receive yields inbound commands until the connection closes.
func (w *WSChannel) Receive() <-chan Command { return w.in }

// Close ends the connection.
func (w *WSChannel) Close() error {
	var err error
	w.once.Do(func() {
		err = w.conn.Close(websocket.StatusNormalClosure, "narrator closed")
		w.cancel()
		w.wg.Wait()
	})
	return err
}

func (w *WSChannel) readLoop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.in)
	for {
		_, msg, err := w.conn.Read(ctx)
		if err != nil {
			w.logger.Debug("command channel closed", "error", err)
			return
		}
		var c Command
		if err := json.Unmarshal(msg, &c); err != nil {
			w.logger.Debug("ignoring malformed command", "error", err)
			continue
		}
		select {
		case w.in <- c:
		case <-ctx.Done():
			return
		}
	}
}
