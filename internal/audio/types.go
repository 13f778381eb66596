// Package audio decodes raw audio resources into PCM sample buffers.
package audio

import (
	"context"
	"errors"
)

// ErrDecode is returned when a resource cannot be decoded.
var ErrDecode = errors.New("audio decode failed")

// Decoder turns an encoded audio resource into PCM samples.
// Implementations must stop early and return ctx.Err() once ctx is done.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Buffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte) (*Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	return f(ctx, data)
}

// Buffer holds decoded audio as one float32 slice per channel, samples in
// [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Channel returns channel i or nil when it does not exist.
func (b *Buffer) Channel(i int) []float32 {
	if b == nil || i < 0 || i >= len(b.Channels) {
		return nil
	}
	return b.Channels[i]
}

// checkEvery is how many frames a decoder processes between ctx checks.
const checkEvery = 1 << 14
