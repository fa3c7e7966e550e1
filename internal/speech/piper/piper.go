// Package piper narrates with the piper neural voice. Text is synthesised to
// raw PCM by a piper subprocess and then played through a Player. Boundary
// events are approximated from playback progress and snapped back to word
// starts.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/cache"
	"github.com/dgnsrekt/recite/internal/speech"
	"github.com/mitchellh/go-homedir"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "piper"

// Output format of piper --output-raw.
const (
	SampleRate     = 22050
	Channels       = 1
	BytesPerSample = 2
)

// Player plays signed 16-bit little-endian mono PCM at SampleRate. progress
// receives the played fraction in [0, 1] periodically. Play returns once
// playback has finished or ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte, volume float64, progress func(float64)) error
}

// Cache stores synthesised PCM between utterances.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, pcm []byte) error
}

// Backend is a speech.Backend driving piper.
type Backend struct {
	binary string
	model  string
	player Player
	cache  Cache
	logger *log.Logger

	mu      sync.Mutex
	seq     int
	running map[int]context.CancelFunc
}

// New returns a Backend synthesising with the given model file.
func New(binary, model string, player Player, logger *log.Logger) *Backend {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = log.Default()
	}
	if m, err := homedir.Expand(model); err == nil {
		model = m
	}
	return &Backend{
		binary:  binary,
		model:   model,
		player:  player,
		logger:  logger.WithPrefix("piper"),
		running: make(map[int]context.CancelFunc),
	}
}

// SetCache makes the backend reuse audio synthesised earlier with the same
// model, rate and text.
func (b *Backend) SetCache(c Cache) { b.cache = c }

// Available reports whether the binary, the model and audio output are usable.
func (b *Backend) Available() error {
	_, err := b.lookup()
	return err
}

func (b *Backend) lookup() (string, error) {
	if b.player == nil {
		return "", fmt.Errorf("%w: no audio output", speech.ErrUnavailable)
	}
	path, err := exec.LookPath(b.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}
	if b.model == "" {
		return "", fmt.Errorf("%w: no voice model configured", speech.ErrUnavailable)
	}
	if _, err := os.Stat(b.model); err != nil {
		return "", fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}
	return path, nil
}

// Args maps an utterance onto piper flags. A voice names an alternative
// model file; piper has no pitch control.
func Args(model string, u speech.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	if u.Voice != "" {
		model = u.Voice
	}
	return []string{
		"--model", model,
		"--output-raw",
		"--length_scale", strconv.FormatFloat(1/rate, 'f', 3, 64),
	}
}

func (b *Backend) Speak(u speech.Utterance, ev speech.Events) error {
	path, err := b.lookup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.running[id] = cancel
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.running, id)
			b.mu.Unlock()
			cancel()
		}()

		err := b.narrate(ctx, path, u, ev)
		switch {
		case ctx.Err() != nil:
			ev.Error(speech.ErrCanceled)
		case err != nil:
			ev.Error(fmt.Errorf("%w: %w", speech.ErrUtteranceFailed, err))
		default:
			ev.End()
		}
	}()
	return nil
}

func (b *Backend) narrate(ctx context.Context, path string, u speech.Utterance, ev speech.Events) error {
	pcm, err := b.pcm(ctx, path, u)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	ev.Start()
	text := []rune(u.Text)
	starts := wordStarts(text)
	last := 0
	return b.player.Play(ctx, pcm, u.Volume, func(frac float64) {
		if i := boundaryAt(starts, int(frac*float64(len(text)))); i > last {
			last = i
			ev.Progress(i)
		}
	})
}

// pcm returns the audio for u, from the cache when possible.
func (b *Backend) pcm(ctx context.Context, path string, u speech.Utterance) ([]byte, error) {
	args := Args(b.model, u)
	key := cache.Key(strings.Join(args, " "), u.Text)
	if b.cache != nil {
		if pcm, ok := b.cache.Get(key); ok {
			b.logger.Debug("cache hit", "chars", len([]rune(u.Text)), "bytes", len(pcm))
			return pcm, nil
		}
	}

	began := time.Now()
	pcm, err := synthesize(ctx, path, args, u.Text)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("synthesised", "chars", len([]rune(u.Text)), "bytes", len(pcm), "took", time.Since(began))
	if b.cache != nil {
		if err := b.cache.Put(key, pcm); err != nil {
			b.logger.Warn("could not cache audio", "error", err)
		}
	}
	return pcm, nil
}

func synthesize(ctx context.Context, path string, args []string, text string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, errors.New("piper produced no audio")
	}
	// drop a trailing odd byte so the player never sees half a sample
	return pcm[:len(pcm)-len(pcm)%BytesPerSample], nil
}

// CancelAll stops synthesis and playback of every utterance.
func (b *Backend) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.running {
		cancel()
		delete(b.running, id)
	}
}

// Duration returns how long pcm takes to play.
func Duration(pcm []byte) time.Duration {
	samples := len(pcm) / (BytesPerSample * Channels)
	return time.Duration(samples) * time.Second / SampleRate
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

// boundaryAt returns the last word start at or before offset.
func boundaryAt(starts []int, offset int) int {
	best := 0
	for _, s := range starts {
		if s > offset {
			break
		}
		best = s
	}
	return best
}
