// Package espeak narrates through an espeak-ng subprocess. Each utterance
// runs its own process with the text on stdin; the process exiting marks the
// end of the utterance. espeak-ng reports no word boundaries, so the backend
// only ever emits start, end and error events.
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/recite/internal/speech"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "espeak-ng"

const (
	baseWPM  = 175
	maxPitch = 99
)

// Backend is a speech.Backend backed by espeak-ng.
type Backend struct {
	binary string
	logger *log.Logger

	mu      sync.Mutex
	seq     int
	running map[int]context.CancelFunc
}

// New returns a Backend running binary, or DefaultBinary when empty.
func New(binary string, logger *log.Logger) *Backend {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{
		binary:  binary,
		logger:  logger.WithPrefix("espeak"),
		running: make(map[int]context.CancelFunc),
	}
}

// Available reports whether the binary can be found.
func (b *Backend) Available() error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}
	return nil
}

// Args maps an utterance onto espeak-ng flags.
func Args(u speech.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := min(maxPitch, max(0, int(math.Round(u.Pitch*50))))
	amp := max(0, int(math.Round(u.Volume*100)))
	args := []string{
		"-s", strconv.Itoa(int(math.Round(baseWPM * rate))),
		"-p", strconv.Itoa(pitch),
		"-a", strconv.Itoa(amp),
		"-b", "1",
	}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	return append(args, "--stdin")
}

func (b *Backend) Speak(u speech.Utterance, ev speech.Events) error {
	path, err := exec.LookPath(b.binary)
	if err != nil {
		return fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, Args(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.running[id] = cancel
	b.mu.Unlock()

	b.logger.Debug("started", "pid", cmd.Process.Pid, "chars", len([]rune(u.Text)))
	ev.Start()

	go func() {
		err := cmd.Wait()
		canceled := ctx.Err() != nil
		b.mu.Lock()
		delete(b.running, id)
		b.mu.Unlock()
		cancel()

		switch {
		case canceled:
			ev.Error(speech.ErrCanceled)
		case err != nil:
			b.logger.Debug("failed", "err", err, "stderr", strings.TrimSpace(stderr.String()))
			ev.Error(fmt.Errorf("%w: %w", speech.ErrUtteranceFailed, err))
		default:
			ev.End()
		}
	}()
	return nil
}

// CancelAll kills every running process. Each reports ErrCanceled once it
// has exited.
func (b *Backend) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.running {
		cancel()
		delete(b.running, id)
	}
}

// Voices runs "espeak-ng --voices" and parses its table.
func (b *Backend) Voices() ([]speech.Voice, error) {
	path, err := exec.LookPath(b.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}
	out, err := exec.Command(path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	return ParseVoices(bytes.NewReader(out))
}

// ParseVoices reads the voice table printed by --voices. The header line is
// skipped; the language column doubles as the voice id passed to -v.
func ParseVoices(r io.Reader) ([]speech.Voice, error) {
	var voices []speech.Voice
	sc := bufio.NewScanner(r)
	header := true
	for sc.Scan() {
		line := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(strings.TrimSpace(line), "Pty") {
				continue
			}
		}
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		voices = append(voices, speech.Voice{
			ID:   f[1],
			Name: strings.ReplaceAll(f[3], "_", " "),
			Lang: f[1],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(voices) == 0 {
		return nil, errors.New("no voices listed")
	}
	return voices, nil
}
