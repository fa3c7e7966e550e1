// Package mock provides a simulated narration backend. It narrates nothing
// but produces start, sparse boundary, end and error events on a clock, which
// makes it useful for demos and for exercising the playback driver.
package mock

import (
	"sync"
	"time"
	"unicode"

	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/speech"
)

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) loop.Timer
}

// Backend is a simulated speech.Backend.
type Backend struct {
	clock Clock

	mu            sync.Mutex
	cps           float64
	startDelay    time.Duration
	failDelay     time.Duration
	progressEvery int
	maxLen        int
	available     bool
	callCount     int
	active        map[*utterance]struct{}
	voices        []speech.Voice
}

type utterance struct {
	ev     speech.Events
	timers []loop.Timer
}

// New returns a Backend speaking 14 characters per second at rate 1 with a
// boundary event every eight words.
func New(clock Clock) *Backend {
	return &Backend{
		clock:         clock,
		cps:           14,
		startDelay:    50 * time.Millisecond,
		failDelay:     100 * time.Millisecond,
		progressEvery: 8,
		available:     true,
		active:        make(map[*utterance]struct{}),
		voices: []speech.Voice{
			{ID: "mock-en", Name: "Mock English", Lang: "en-us"},
			{ID: "mock-vi", Name: "Mock Vietnamese", Lang: "vi-vn"},
		},
	}
}

// SetDelay sets the delay before an utterance starts.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startDelay = d
}

// SetSpeed sets the simulated characters per second at rate 1.
func (b *Backend) SetSpeed(cps float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cps > 0 {
		b.cps = cps
	}
}

// SetProgressEvery sets how many words pass between boundary events. Zero
// disables boundaries entirely.
func (b *Backend) SetProgressEvery(words int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progressEvery = max(0, words)
}

// SetFailure makes utterances longer than maxLen runes fail. Zero disables.
func (b *Backend) SetFailure(maxLen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxLen = max(0, maxLen)
}

// SetAvailable toggles whether Speak accepts anything.
func (b *Backend) SetAvailable(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = ok
}

// CallCount returns the number of Speak calls.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount
}

// Voices lists the simulated voices.
func (b *Backend) Voices() ([]speech.Voice, error) {
	return append([]speech.Voice(nil), b.voices...), nil
}

func (b *Backend) Speak(u speech.Utterance, ev speech.Events) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callCount++
	if !b.available {
		return speech.ErrUnavailable
	}

	text := []rune(u.Text)
	ut := &utterance{ev: ev}
	b.active[ut] = struct{}{}

	if b.maxLen > 0 && len(text) > b.maxLen {
		b.at(ut, b.failDelay, func() {
			if b.retire(ut) {
				ev.Error(speech.ErrUtteranceFailed)
			}
		})
		return nil
	}

	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	cps := b.cps * rate
	offset := func(i int) time.Duration {
		return b.startDelay + time.Duration(float64(i)/cps*float64(time.Second))
	}

	b.at(ut, b.startDelay, func() {
		if b.isActive(ut) {
			ev.Start()
		}
	})
	if b.progressEvery > 0 {
		for n, i := range wordStarts(text) {
			if n == 0 || n%b.progressEvery != 0 {
				continue
			}
			b.at(ut, offset(i), func() {
				if b.isActive(ut) {
					ev.Progress(i)
				}
			})
		}
	}
	b.at(ut, offset(len(text)), func() {
		if b.retire(ut) {
			ev.End()
		}
	})
	return nil
}

// CancelAll drops every utterance and reports ErrCanceled for each.
func (b *Backend) CancelAll() {
	b.mu.Lock()
	var dropped []*utterance
	for ut := range b.active {
		for _, t := range ut.timers {
			t.Stop()
		}
		dropped = append(dropped, ut)
	}
	clear(b.active)
	b.mu.Unlock()

	for _, ut := range dropped {
		ut.ev.Error(speech.ErrCanceled)
	}
}

// at schedules f for ut. The caller holds b.mu.
func (b *Backend) at(ut *utterance, d time.Duration, f func()) {
	ut.timers = append(ut.timers, b.clock.AfterFunc(d, f))
}

func (b *Backend) isActive(ut *utterance) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[ut]
	return ok
}

func (b *Backend) retire(ut *utterance) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.active[ut]; !ok {
		return false
	}
	delete(b.active, ut)
	for _, t := range ut.timers {
		t.Stop()
	}
	return true
}

func wordStarts(text []rune) []int {
	var starts []int
	for i, r := range text {
		if !unicode.IsSpace(r) && (i == 0 || unicode.IsSpace(text[i-1])) {
			starts = append(starts, i)
		}
	}
	return starts
}
