// Package prefs persists the user's narration rate and pitch.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// Key is the storage key the preferences live under.
const Key = "voice-settings"

const (
	DefaultRate  = 1.0
	DefaultPitch = 1.0
)

// ErrStorageUnavailable wraps failures of the backing KV.
var ErrStorageUnavailable = errors.New("preference storage unavailable")

// Bounds is a closed range snapped to a step.
type Bounds struct {
	Min  float64
	Max  float64
	Step float64
}

var (
	RateBounds  = Bounds{Min: 0.5, Max: 2.0, Step: 0.1}
	PitchBounds = Bounds{Min: 0.0, Max: 2.0, Step: 0.1}
)

// Sanitize clamps v into b and snaps it to the nearest step. NaN and
// infinities become fallback. Sanitize is idempotent.
func (b Bounds) Sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	v = b.clamp(v)
	if b.Step > 0 {
		v = math.Round(v/b.Step) * b.Step
	}
	// drop float noise such as 1.2000000000000002
	v = math.Round(v*1e6) / 1e6
	return b.clamp(v)
}

func (b Bounds) clamp(v float64) float64 {
	return math.Min(b.Max, math.Max(b.Min, v))
}

// Preferences are the persisted playback parameters.
type Preferences struct {
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// Defaults returns the preferences used when nothing valid is stored.
func Defaults() Preferences {
	return Preferences{Rate: DefaultRate, Pitch: DefaultPitch}
}

// Sanitize returns p with both fields within bounds.
func (p Preferences) Sanitize() Preferences {
	return Preferences{
		Rate:  RateBounds.Sanitize(p.Rate, DefaultRate),
		Pitch: PitchBounds.Sanitize(p.Pitch, DefaultPitch),
	}
}

// AdjustRate returns p with the rate moved by delta and sanitised.
func (p Preferences) AdjustRate(delta float64) Preferences {
	p.Rate += delta
	return p.Sanitize()
}

// AdjustPitch returns p with the pitch moved by delta and sanitised.
func (p Preferences) AdjustPitch(delta float64) Preferences {
	p.Pitch += delta
	return p.Sanitize()
}

// FormatRate renders the rate with two decimals.
func (p Preferences) FormatRate() string { return fmt.Sprintf("%.2f", p.Rate) }

// FormatPitch renders the pitch with one decimal.
func (p Preferences) FormatPitch() string { return fmt.Sprintf("%.1f", p.Pitch) }

// KV is a string key/value store.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Store loads and saves Preferences through a KV.
type Store struct {
	kv     KV
	logger *log.Logger
}

// NewStore returns a Store backed by kv. A nil logger uses the default.
func NewStore(kv KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// stored mirrors Preferences with optional fields so partial records keep
// defaults for what is missing.
type stored struct {
	Rate  *float64 `json:"rate"`
	Pitch *float64 `json:"pitch"`
}

// Load returns the saved preferences, or defaults when nothing usable is
// stored. It never fails.
func (s *Store) Load() Preferences {
	p := Defaults()
	raw, ok, err := s.kv.Get(Key)
	if err != nil {
		s.logger.Debug("preferences unreadable", "error", fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
		return p
	}
	if !ok {
		return p
	}
	var rec stored
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Debug("preferences malformed", "error", err)
		return p
	}
	if rec.Rate != nil {
		p.Rate = *rec.Rate
	}
	if rec.Pitch != nil {
		p.Pitch = *rec.Pitch
	}
	return p.Sanitize()
}

// Save sanitises p and persists it. The sanitised value is returned even
// when persisting fails; callers may ignore the error.
func (s *Store) Save(p Preferences) (Preferences, error) {
	p = p.Sanitize()
	b, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	if err := s.kv.Set(Key, string(b)); err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		s.logger.Debug("preferences not saved", "error", err)
		return p, err
	}
	return p, nil
}
