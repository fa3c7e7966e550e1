package piper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/cache"
	"github.com/dgnsrekt/recite/internal/speech"
)

type fakePlayer struct {
	pcm    []byte
	volume float64
	fracs  []float64
	block  bool
}

func (p *fakePlayer) Play(ctx context.Context, pcm []byte, volume float64, progress func(float64)) error {
	p.pcm, p.volume = pcm, volume
	for _, f := range p.fracs {
		progress(f)
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func setup(t *testing.T, script string) (binary, model string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	binary = filepath.Join(dir, "piper")
	model = filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(model, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return binary, model
}

type trace struct {
	started  bool
	progress []int
	done     chan error
}

func newTrace() *trace { return &trace{done: make(chan error, 1)} }

func (tr *trace) events() speech.Events {
	return speech.Events{
		OnStart:    func() { tr.started = true },
		OnProgress: func(i int) { tr.progress = append(tr.progress, i) },
		OnEnd:      func() { tr.done <- nil },
		OnError:    func(err error) { tr.done <- err },
	}
}

func (tr *trace) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-tr.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event")
		return nil
	}
}

var quiet = log.New(io.Discard)

func TestSpeak(t *testing.T) {
	bin, model := setup(t, "cat > /dev/null; printf 'abcde'")
	p := &fakePlayer{fracs: []float64{0.1, 0.5, 0.55, 1}}
	b := New(bin, model, p, quiet)

	tr := newTrace()
	text := "alpha beta gamma delta" // words at 0 6 11 17
	if err := b.Speak(speech.Utterance{Text: text, Rate: 1, Volume: 0.7}, tr.events()); err != nil {
		t.Fatal(err)
	}
	if err := tr.wait(t); err != nil {
		t.Fatal(err)
	}
	if !tr.started {
		t.Error("no start event")
	}
	if string(p.pcm) != "abcd" {
		t.Errorf("pcm = %q, odd byte should be dropped", p.pcm)
	}
	if p.volume != 0.7 {
		t.Errorf("volume = %v", p.volume)
	}
	// 0.1 -> 2 -> word 0 (no event), 0.5 -> 11, 0.55 -> 12 -> 11 (dup), 1 -> 17
	if want := []int{11, 17}; !slices.Equal(tr.progress, want) {
		t.Errorf("progress = %v, want %v", tr.progress, want)
	}
}

func TestSpeakSynthesisFailure(t *testing.T) {
	bin, model := setup(t, "echo 'bad model' >&2; exit 1")
	b := New(bin, model, &fakePlayer{}, quiet)
	tr := newTrace()
	if err := b.Speak(speech.Utterance{Text: "hi"}, tr.events()); err != nil {
		t.Fatal(err)
	}
	if err := tr.wait(t); !errors.Is(err, speech.ErrUtteranceFailed) {
		t.Errorf("err = %v", err)
	}
	if tr.started {
		t.Error("start reported for a failed synthesis")
	}
}

func TestSpeakUsesCache(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	bin, model := setup(t, "cat > /dev/null; echo run >> '"+runs+"'; printf 'abcd'")
	c, err := cache.Open(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	p := &fakePlayer{}
	b := New(bin, model, p, quiet)
	b.SetCache(c)

	for i, u := range []speech.Utterance{
		{Text: "same words", Rate: 1},
		{Text: "same words", Rate: 1},
		{Text: "same words", Rate: 1.5},
	} {
		p.pcm = nil
		tr := newTrace()
		if err := b.Speak(u, tr.events()); err != nil {
			t.Fatal(err)
		}
		if err := tr.wait(t); err != nil {
			t.Fatalf("utterance %d: %v", i, err)
		}
		if string(p.pcm) != "abcd" {
			t.Errorf("utterance %d played %q", i, p.pcm)
		}
	}

	out, err := os.ReadFile(runs)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(out) / len("run\n"); n != 2 {
		t.Errorf("piper ran %d times, want 2 (one per distinct rate)", n)
	}
	if s := c.Stats(); s.Hits != 1 || s.Items != 2 {
		t.Errorf("cache stats = %+v", s)
	}
}

func TestCancelAll(t *testing.T) {
	bin, model := setup(t, "cat > /dev/null; printf 'xxxx'")
	b := New(bin, model, &fakePlayer{block: true}, quiet)
	tr := newTrace()
	if err := b.Speak(speech.Utterance{Text: "hello there"}, tr.events()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	b.CancelAll()
	if err := tr.wait(t); !errors.Is(err, speech.ErrCanceled) {
		t.Errorf("err = %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	bin, model := setup(t, "exit 0")
	tests := []struct {
		name string
		b    *Backend
	}{
		{"no player", New(bin, model, nil, quiet)},
		{"no model", New(bin, "", &fakePlayer{}, quiet)},
		{"missing model", New(bin, model+".missing", &fakePlayer{}, quiet)},
		{"missing binary", New(bin+".missing", model, &fakePlayer{}, quiet)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.b.Speak(speech.Utterance{Text: "x"}, speech.Events{}); !errors.Is(err, speech.ErrUnavailable) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestArgs(t *testing.T) {
	got := Args("m.onnx", speech.Utterance{Rate: 2})
	want := []string{"--model", "m.onnx", "--output-raw", "--length_scale", "0.500"}
	if !slices.Equal(got, want) {
		t.Errorf("Args = %v", got)
	}
	if got := Args("m.onnx", speech.Utterance{Voice: "other.onnx"}); got[1] != "other.onnx" || got[4] != "1.000" {
		t.Errorf("Args with voice = %v", got)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(make([]byte, SampleRate*BytesPerSample)); d != time.Second {
		t.Errorf("Duration = %v", d)
	}
}
