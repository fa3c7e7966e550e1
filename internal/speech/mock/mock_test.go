package mock

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/speech"
)

type trace struct {
	events   []string
	progress []int
	err      error
}

func (tr *trace) callbacks() speech.Events {
	return speech.Events{
		OnStart:    func() { tr.events = append(tr.events, "start") },
		OnProgress: func(i int) { tr.progress = append(tr.progress, i) },
		OnEnd:      func() { tr.events = append(tr.events, "end") },
		OnError: func(err error) {
			tr.events = append(tr.events, "error")
			tr.err = err
		},
	}
}

func TestSpeakLifecycle(t *testing.T) {
	clock := loop.NewManual(time.Unix(0, 0))
	b := New(clock)
	b.SetSpeed(10)
	b.SetProgressEvery(2)

	text := "one two three four five six" // 27 runes
	tr := &trace{}
	if err := b.Speak(speech.Utterance{Text: text, Rate: 1}, tr.callbacks()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(50 * time.Millisecond)
	if len(tr.events) != 1 || tr.events[0] != "start" {
		t.Fatalf("events = %v", tr.events)
	}
	clock.Advance(3 * time.Second)
	if len(tr.events) != 2 || tr.events[1] != "end" {
		t.Fatalf("events = %v", tr.events)
	}
	// words start at 0 4 8 14 19 24; every second word after the first
	want := []int{8, 19}
	if len(tr.progress) != len(want) || tr.progress[0] != want[0] || tr.progress[1] != want[1] {
		t.Errorf("progress = %v, want %v", tr.progress, want)
	}
	if b.CallCount() != 1 {
		t.Errorf("CallCount = %d", b.CallCount())
	}
}

func TestRateShortensDuration(t *testing.T) {
	clock := loop.NewManual(time.Unix(0, 0))
	b := New(clock)
	b.SetSpeed(10)
	tr := &trace{}
	_ = b.Speak(speech.Utterance{Text: strings.Repeat("x", 20), Rate: 2}, tr.callbacks())
	clock.Advance(50*time.Millisecond + time.Second)
	if len(tr.events) != 2 {
		t.Errorf("20 runes at 20 cps should end after 1s, events = %v", tr.events)
	}
}

func TestFailureAboveMaxLen(t *testing.T) {
	clock := loop.NewManual(time.Unix(0, 0))
	b := New(clock)
	b.SetFailure(10)
	tr := &trace{}
	_ = b.Speak(speech.Utterance{Text: strings.Repeat("y", 11)}, tr.callbacks())
	clock.Advance(time.Second)
	if !errors.Is(tr.err, speech.ErrUtteranceFailed) || len(tr.events) != 1 {
		t.Errorf("events = %v err = %v", tr.events, tr.err)
	}
}

func TestCancelAll(t *testing.T) {
	clock := loop.NewManual(time.Unix(0, 0))
	b := New(clock)
	tr := &trace{}
	_ = b.Speak(speech.Utterance{Text: "some words to say"}, tr.callbacks())
	clock.Advance(60 * time.Millisecond)
	b.CancelAll()
	clock.Advance(time.Minute)
	if len(tr.events) != 2 || tr.events[1] != "error" || !errors.Is(tr.err, speech.ErrCanceled) {
		t.Errorf("events = %v err = %v", tr.events, tr.err)
	}
	if clock.Pending() != 0 {
		t.Errorf("%d timers left", clock.Pending())
	}
}

func TestUnavailable(t *testing.T) {
	b := New(loop.NewManual(time.Unix(0, 0)))
	b.SetAvailable(false)
	if err := b.Speak(speech.Utterance{Text: "hi"}, speech.Events{}); !errors.Is(err, speech.ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestVoices(t *testing.T) {
	voices, err := New(nil).Voices()
	if err != nil || len(voices) == 0 {
		t.Fatalf("voices = %v, err = %v", voices, err)
	}
	if v, ok := speech.PickVoice("vi", voices); !ok || v.ID != "mock-vi" {
		t.Errorf("PickVoice = %v %v", v, ok)
	}
}
