package ui

import (
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/navbridge"
	"github.com/dgnsrekt/recite/internal/source"
)

// navigator moves between sibling documents on disk. It declines when the
// current document has no path or no neighbour, letting the bridge fall back
// to the host channel.
type navigator struct {
	current string
	pending string
	logger  *log.Logger
}

func (n *navigator) Invoke(a navbridge.Action) bool {
	step := 1
	if a == navbridge.Prev {
		step = -1
	}
	next, err := source.Sibling(n.current, step)
	if err != nil {
		n.logger.Debug("no sibling document", "from", n.current, "action", a, "error", err)
		return false
	}
	n.pending = next
	return true
}

// take returns and clears the document chosen by the last navigation.
func (n *navigator) take() string {
	p := n.pending
	n.pending = ""
	return p
}
