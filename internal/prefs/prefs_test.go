package prefs

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

var quiet = log.New(io.Discard)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   Preferences
		want Preferences
	}{
		{"defaults", Preferences{1, 1}, Preferences{1, 1}},
		{"clamp high", Preferences{7, 5}, Preferences{2, 2}},
		{"clamp low", Preferences{0.1, -1}, Preferences{0.5, 0}},
		{"snap", Preferences{1.26, 0.74}, Preferences{1.3, 0.7}},
		{"float noise", Preferences{1.2000000000000002, 1.1}, Preferences{1.2, 1.1}},
		{"nan", Preferences{math.NaN(), math.NaN()}, Preferences{1, 1}},
		{"inf", Preferences{math.Inf(1), math.Inf(-1)}, Preferences{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Sanitize()
			if got != tt.want {
				t.Errorf("Sanitize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	for v := -1.0; v <= 3.0; v += 0.013 {
		once := Preferences{v, v}.Sanitize()
		twice := once.Sanitize()
		if once != twice {
			t.Fatalf("sanitise not idempotent for %v: %v then %v", v, once, twice)
		}
	}
}

func TestAdjustRate(t *testing.T) {
	p := Defaults()
	for i := 0; i < 3; i++ {
		p = p.AdjustRate(0.1)
	}
	if p.FormatRate() != "1.30" {
		t.Errorf("rate = %s, want 1.30", p.FormatRate())
	}
	for i := 0; i < 20; i++ {
		p = p.AdjustRate(-0.1)
	}
	if p.Rate != RateBounds.Min {
		t.Errorf("rate = %v, want %v", p.Rate, RateBounds.Min)
	}
	if got := p.AdjustPitch(-0.3).FormatPitch(); got != "0.7" {
		t.Errorf("pitch = %s, want 0.7", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(NewMemoryKV(), quiet)
	saved, err := s.Save(Preferences{Rate: 1.26, Pitch: 9})
	if err != nil {
		t.Fatal(err)
	}
	if saved != (Preferences{1.3, 2}) {
		t.Errorf("saved = %v", saved)
	}
	if got := s.Load(); got != saved {
		t.Errorf("Load() = %v, want %v", got, saved)
	}
}

func TestStoreLoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Preferences
	}{
		{"garbage", "{not json", Defaults()},
		{"rate only", `{"rate": 1.5}`, Preferences{1.5, 1}},
		{"pitch only", `{"pitch": 0.4}`, Preferences{1, 0.4}},
		{"out of range", `{"rate": 12, "pitch": -3}`, Preferences{2, 0}},
		{"wrong types", `{"rate": "fast"}`, Defaults()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			_ = kv.Set(Key, tt.raw)
			if got := NewStore(kv, quiet).Load(); got != tt.want {
				t.Errorf("Load() = %v, want %v", got, tt.want)
			}
		})
	}
}

type brokenKV struct{}

var errBroken = errors.New("disk on fire")

func (brokenKV) Get(string) (string, bool, error) { return "", false, errBroken }
func (brokenKV) Set(string, string) error         { return errBroken }

func TestStoreUnavailable(t *testing.T) {
	s := NewStore(brokenKV{}, quiet)
	if got := s.Load(); got != Defaults() {
		t.Errorf("Load() = %v, want defaults", got)
	}
	p, err := s.Save(Preferences{Rate: 1.5, Pitch: 1})
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, errBroken) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}
	if p.Rate != 1.5 {
		t.Errorf("sanitised value should still be returned, got %v", p)
	}
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yml")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := kv.Get(Key); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	s := NewStore(kv, quiet)
	if _, err := s.Save(Preferences{Rate: 0.8, Pitch: 1.2}); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("other", "kept"); err != nil {
		t.Fatal(err)
	}

	reopened, _ := NewFileKV(path)
	if got := NewStore(reopened, quiet).Load(); got != (Preferences{0.8, 1.2}) {
		t.Errorf("Load() = %v", got)
	}
	if v, ok, _ := reopened.Get("other"); !ok || v != "kept" {
		t.Errorf("other key lost: %q %v", v, ok)
	}
}

func TestFileKVCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")
	if err := os.WriteFile(path, []byte("voice-settings: [unclosed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	kv, _ := NewFileKV(path)
	if _, _, err := kv.Get(Key); err == nil {
		t.Error("expected parse error")
	}
	if got := NewStore(kv, quiet).Load(); got != Defaults() {
		t.Errorf("Load() = %v, want defaults", got)
	}
	if err := kv.Set(Key, `{"rate":1.1,"pitch":1}`); err != nil {
		t.Fatalf("Set over corrupt file: %v", err)
	}
	if got := NewStore(kv, quiet).Load(); got.Rate != 1.1 {
		t.Errorf("Load() = %v", got)
	}
}
