package ui

import (
	"time"

	"github.com/dgnsrekt/recite/internal/navbridge"
)

// Config contains TUI-specific configuration.
type Config struct {
	// File to narrate, or "-" for stdin.
	Path string

	// Start narrating as soon as the first document is loaded and playback
	// has been unlocked.
	Autoplay bool

	// Toggle, previous and next shortcuts.
	Keys navbridge.KeyMap

	EnableMouse     bool          `env:"RECITE_MOUSE"`
	HighlightColor  string        `env:"RECITE_HIGHLIGHT_COLOR"  envDefault:"226"`
	EdgeMargin      int           `env:"RECITE_EDGE_MARGIN"      envDefault:"2"`
	RepaintInterval time.Duration `env:"RECITE_REPAINT_INTERVAL" envDefault:"100ms"`
}
