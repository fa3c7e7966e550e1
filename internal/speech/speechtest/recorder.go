// Package speechtest provides a scripted speech.Backend for tests.
package speechtest

import (
	"sync"

	"github.com/dgnsrekt/recite/internal/speech"
)

// Call is one recorded Speak.
type Call struct {
	Utterance speech.Utterance
	Events    speech.Events
}

// Recorder records utterances and leaves every event to the test.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	cancels  int
	speakErr error
}

// FailSpeak makes subsequent Speak calls return err. Nil restores success.
func (r *Recorder) FailSpeak(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speakErr = err
}

func (r *Recorder) Speak(u speech.Utterance, ev speech.Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.speakErr != nil {
		return r.speakErr
	}
	r.calls = append(r.calls, Call{Utterance: u, Events: ev})
	return nil
}

func (r *Recorder) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent call. It panics if there is none.
func (r *Recorder) Last() Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// Len returns the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Cancels returns how many times CancelAll was called.
func (r *Recorder) Cancels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels
}
