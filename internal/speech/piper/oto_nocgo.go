//go:build !cgo

package piper

import (
	"context"

	"github.com/dgnsrekt/recite/internal/speech"
)

// OtoPlayer is unavailable in builds without cgo.
type OtoPlayer struct{}

func NewOtoPlayer() *OtoPlayer { return &OtoPlayer{} }

func (*OtoPlayer) Play(context.Context, []byte, float64, func(float64)) error {
	return speech.ErrUnavailable
}
