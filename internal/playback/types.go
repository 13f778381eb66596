// Package playback owns the transport state of the loaded audio resource:
// play, pause, seek, volume and rate, plus time-update notifications.
package playback

import (
	"context"
	"errors"
)

var (
	// ErrPlayback wraps failures reported by the playback device.
	ErrPlayback = errors.New("playback failed")
	// ErrNotLoaded is returned by transport calls before a resource is loaded.
	ErrNotLoaded = errors.New("no audio loaded")
	// ErrInvalidValue is returned for NaN or non-positive rates and NaN volumes.
	ErrInvalidValue = errors.New("invalid value")
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoaded  State = "loaded"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Rate limits and presets.
const (
	MinRate = 0.25
	MaxRate = 4.0
)

// RatePresets are the speeds offered by the player UI.
var RatePresets = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// Snapshot is a copy of the playback state at one instant.
type Snapshot struct {
	State       State   `json:"state"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	Rate        float64 `json:"rate"`
	Playing     bool    `json:"playing"`
	Error       string  `json:"error,omitempty"`
	// Seq increases with every notified change. Listeners run outside the
	// controller lock, so a concurrent Tick and Seek may deliver out of
	// order; a snapshot with a lower Seq than one already seen is stale.
	Seq         uint64  `json:"seq"`
}

// Progress returns CurrentTime/Duration, or 0 when nothing is loaded.
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.CurrentTime / s.Duration
}

// Device is the host media element. Its clock is outside the program's
// control; the controller only polls Position.
type Device interface {
	// Load resolves the resource metadata and returns its duration in seconds.
	Load(ctx context.Context, data []byte) (float64, error)
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	SetRate(r float64) error
	// Position is the device-reported playback position in seconds.
	Position() float64
	Close() error
}
