package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MimeLyc/caption-sync/internal/audio"
)

// ClockDevice is a silent Device that advances a wall clock scaled by the
// playback rate. It backs headless servers and tests.
type ClockDevice struct {
	decoder audio.Decoder
	now     func() time.Time

	mu        sync.Mutex
	loaded    bool
	duration  float64
	base      float64
	startedAt time.Time
	playing   bool
	rate      float64
	volume    float64
}

type ClockOption func(*ClockDevice)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ClockOption {
	return func(d *ClockDevice) {
		if now != nil {
			d.now = now
		}
	}
}

// NewClockDevice uses decoder only to learn the resource duration.
func NewClockDevice(decoder audio.Decoder, opts ...ClockOption) *ClockDevice {
	d := &ClockDevice{
		decoder: decoder,
		now:     time.Now,
		rate:    1,
		volume:  1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *ClockDevice) Load(ctx context.Context, data []byte) (float64, error) {
	buf, err := d.decoder.Decode(ctx, data)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.duration = buf.Duration()
	d.base = 0
	d.playing = false
	return d.duration, nil
}

func (d *ClockDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return fmt.Errorf("clock device: nothing loaded")
	}
	if !d.playing {
		d.startedAt = d.now()
		d.playing = true
	}
	return nil
}

func (d *ClockDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = d.positionLocked()
	d.playing = false
	return nil
}

func (d *ClockDevice) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = math.Max(0, math.Min(seconds, d.duration))
	d.startedAt = d.now()
	return nil
}

func (d *ClockDevice) SetVolume(v float64) error {
	d.mu.Lock()
	d.volume = v
	d.mu.Unlock()
	return nil
}

func (d *ClockDevice) SetRate(r float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = d.positionLocked()
	d.startedAt = d.now()
	d.rate = r
	return nil
}

func (d *ClockDevice) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

// Close forgets the loaded resource. A later Load starts afresh.
func (d *ClockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.playing = false
	d.duration = 0
	d.base = 0
	return nil
}

func (d *ClockDevice) positionLocked() float64 {
	if !d.playing {
		return d.base
	}
	pos := d.base + d.now().Sub(d.startedAt).Seconds()*d.rate
	return math.Min(pos, d.duration)
}
