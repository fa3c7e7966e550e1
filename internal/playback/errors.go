package playback

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/recite/internal/prefs"
	"github.com/dgnsrekt/recite/internal/speech"
)

// Errors surfaced by the driver.
var (
	// ErrChunkTooLong marks a backend failure that shortening may fix.
	ErrChunkTooLong = errors.New("chunk rejected by backend")
	// ErrUnrecoverable means a chunk failed at the minimum length.
	ErrUnrecoverable = errors.New("narration failed at minimum chunk length")
	// ErrBackendUnavailable means the backend cannot narrate at all.
	ErrBackendUnavailable = fmt.Errorf("backend: %w", speech.ErrUnavailable)
	// ErrStorageUnavailable is re-exported for callers that only import
	// playback.
	ErrStorageUnavailable = prefs.ErrStorageUnavailable
	// ErrStaleCallback marks events from a superseded request.
	ErrStaleCallback = errors.New("stale callback")
	// ErrStalled is raised by the watchdog when a request goes silent.
	ErrStalled = errors.New("narration stalled")
)

// NarrationError carries the context a narration failure happened in.
type NarrationError struct {
	Err       error  // underlying error
	Component string // component that failed
	Action    string // what it was doing
	Offset    int    // chunk start offset
	Length    int    // attempted chunk length
}

func (e *NarrationError) Error() string {
	msg := "unknown narration error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %s at %d (+%d): %s", e.Component, e.Action, e.Offset, e.Length, msg)
}

func (e *NarrationError) Unwrap() error { return e.Err }

// IsRecoverable reports whether shortening and retrying might help.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, speech.ErrUnavailable),
		errors.Is(err, ErrUnrecoverable),
		errors.Is(err, speech.ErrCanceled):
		return false
	}
	return true
}
