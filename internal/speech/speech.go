// Package speech defines the contract between the narration engine and the
// platform that actually produces audio.
package speech

import "errors"

var (
	// ErrUnavailable is returned by Speak when the backend cannot narrate
	// at all (missing binary, no audio device).
	ErrUnavailable = errors.New("narration backend unavailable")
	// ErrCanceled is delivered through OnError for utterances dropped by
	// CancelAll.
	ErrCanceled = errors.New("utterance canceled")
	// ErrUtteranceFailed is delivered through OnError when the backend gave
	// up on an utterance.
	ErrUtteranceFailed = errors.New("utterance failed")
)

// Utterance is a single narration request.
type Utterance struct {
	Text   string
	Rate   float64 // 1.0 is the backend's normal speed
	Pitch  float64 // 1.0 is the backend's normal pitch, range 0..2
	Volume float64 // 0..1
	Voice  string  // backend-specific voice id, empty for default
}

// Events are the lifecycle callbacks of one utterance. Backends may call
// them from any goroutine. Any field may be nil.
type Events struct {
	OnStart func()
	// OnProgress reports a word boundary as a rune index into
	// Utterance.Text. Backends may call it rarely or never.
	OnProgress func(charIndex int)
	OnEnd      func()
	OnError    func(err error)
}

func (e Events) Start() {
	if e.OnStart != nil {
		e.OnStart()
	}
}

func (e Events) Progress(i int) {
	if e.OnProgress != nil {
		e.OnProgress(i)
	}
}

func (e Events) End() {
	if e.OnEnd != nil {
		e.OnEnd()
	}
}

func (e Events) Error(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

// Backend narrates utterances.
type Backend interface {
	// Speak queues u. A returned error means u was never accepted and no
	// events will follow.
	Speak(u Utterance, ev Events) error
	// CancelAll drops every queued and playing utterance.
	CancelAll()
}

// Voice describes an installed voice.
type Voice struct {
	ID   string
	Name string
	Lang string
}

// VoiceLister is implemented by backends that can enumerate voices.
type VoiceLister interface {
	Voices() ([]Voice, error)
}
