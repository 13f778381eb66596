// Package speaker plays decoded audio on the system output through oto.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MimeLyc/caption-sync/internal/audio"
	"github.com/MimeLyc/caption-sync/internal/playback"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func otoContext(sampleRate int) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			otoErr = fmt.Errorf("open audio output: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})
	return otoCtx, otoRate, otoErr
}

// output is the part of *oto.Player the device drives.
type output interface {
	Play()
	Pause()
	SetVolume(v float64)
	BufferedSize() int
	Seek(offset int64, whence int) (int64, error)
	Err() error
	Close() error
}

// Device implements playback.Device on the default audio output.
type Device struct {
	decoder    audio.Decoder
	sampleRate int

	mu     sync.Mutex
	player output
	source *playback.PCMSource
}

// New creates a speaker device that decodes resources with decoder and
// opens the output at sampleRate on first load.
func New(decoder audio.Decoder, sampleRate int) *Device {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Device{decoder: decoder, sampleRate: sampleRate}
}

func (d *Device) Load(ctx context.Context, data []byte) (float64, error) {
	buf, err := d.decoder.Decode(ctx, data)
	if err != nil {
		return 0, err
	}
	octx, rate, err := otoContext(d.sampleRate)
	if err != nil {
		return 0, err
	}

	source := playback.NewPCMSource(buf, rate)
	if err := d.swap(octx.NewPlayer(source), source); err != nil {
		return 0, err
	}
	return source.Duration(), nil
}

// swap replaces the current player with next. If the current one cannot be
// closed, next is closed instead and the device keeps its old resource.
func (d *Device) swap(next output, source *playback.PCMSource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
		if err := d.player.Close(); err != nil {
			_ = next.Close()
			return fmt.Errorf("close previous player: %w", err)
		}
	}
	d.player = next
	d.source = source
	return nil
}

func (d *Device) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return errors.New("speaker: nothing loaded")
	}
	d.player.Play()
	return d.player.Err()
}

func (d *Device) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	return d.player.Err()
}

func (d *Device) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return errors.New("speaker: nothing loaded")
	}
	_, err := d.player.Seek(d.source.OffsetFor(seconds), io.SeekStart)
	return err
}

func (d *Device) SetVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.SetVolume(v)
	}
	return nil
}

func (d *Device) SetRate(r float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.source != nil {
		d.source.SetRate(r)
	}
	return nil
}

func (d *Device) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0
	}
	return d.source.Position(d.player.BufferedSize())
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	d.source = nil
	return err
}

var (
	_ playback.Device = (*Device)(nil)
	_ output          = (*oto.Player)(nil)
)
