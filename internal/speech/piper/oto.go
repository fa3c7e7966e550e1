//go:build cgo

package piper

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dgnsrekt/recite/internal/speech"
	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays PCM through the system audio device. The device is opened
// on first use and shared by every playback.
type OtoPlayer struct {
	interval time.Duration

	once sync.Once
	ctx  *oto.Context
	err  error
}

// NewOtoPlayer returns a player reporting progress every 200ms.
func NewOtoPlayer() *OtoPlayer {
	return &OtoPlayer{interval: 200 * time.Millisecond}
}

func (p *OtoPlayer) open() error {
	p.once.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		if runtime.GOOS == "darwin" {
			opts.BufferSize = 100 * time.Millisecond
		}
		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			p.err = fmt.Errorf("%w: opening audio device: %w", speech.ErrUnavailable, err)
			return
		}
		<-ready
		p.ctx = ctx
	})
	return p.err
}

func (p *OtoPlayer) Play(ctx context.Context, pcm []byte, volume float64, progress func(float64)) error {
	if err := p.open(); err != nil {
		return err
	}
	pl := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer pl.Close()
	pl.SetVolume(volume)
	pl.Play()

	total := Duration(pcm)
	start := time.Now()
	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-tick.C:
			elapsed := time.Since(start)
			if total > 0 {
				progress(min(1, float64(elapsed)/float64(total)))
			}
			// the device buffer drains after the reader is exhausted
			if !pl.IsPlaying() && elapsed >= total {
				return nil
			}
		}
	}
}
