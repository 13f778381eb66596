// Package render turns the waveform envelope, playback position and caption
// list into drawable instructions for the host canvas.
package render

import (
	"math"

	"github.com/MimeLyc/caption-sync/internal/subtitle"
)

// Theme holds the fill colours used by the host renderer.
type Theme struct {
	Played   string `json:"played"`
	Unplayed string `json:"unplayed"`
	Range    string `json:"range"`
	Marker   string `json:"marker"`
	Playhead string `json:"playhead"`
}

// DefaultTheme matches the player's light palette.
var DefaultTheme = Theme{
	Played:   "#3b82f6",
	Unplayed: "#d1d5db",
	Range:    "rgba(239, 68, 68, 0.3)",
	Marker:   "#ef4444",
	Playhead: "#f59e0b",
}

// Bar is one peak column. X and Width are fractions of the timeline
// width, Height is the peak amplitude in [0, 1].
type Bar struct {
	X      float64 `json:"x"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Played bool    `json:"played"`
}

// Range is the highlighted span of one caption.
type Range struct {
	Index     int     `json:"index"`
	CaptionID int     `json:"caption_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Marker is a vertical line at the start of a caption.
type Marker struct {
	CaptionID int     `json:"caption_id"`
	X         float64 `json:"x"`
}

// Instructions is everything needed to draw one frame. Positions are in
// normalized [0, 1] timeline space.
type Instructions struct {
	Bars     []Bar    `json:"bars"`
	Ranges   []Range  `json:"ranges"`
	Markers  []Marker `json:"markers"`
	Playhead *float64 `json:"playhead,omitempty"`
	Theme    Theme    `json:"theme"`
}

// Empty reports whether there is nothing to draw.
func (in Instructions) Empty() bool {
	return len(in.Bars) == 0 && len(in.Ranges) == 0 && in.Playhead == nil
}

// Render builds the instructions for one frame. It never modifies its
// inputs. A non-positive duration yields an empty instruction set.
func Render(peaks []float64, currentTime, duration float64, captions []subtitle.Caption) Instructions {
	return RenderTheme(peaks, currentTime, duration, captions, DefaultTheme)
}

// RenderTheme is Render with explicit colours.
func RenderTheme(peaks []float64, currentTime, duration float64, captions []subtitle.Caption, theme Theme) Instructions {
	out := Instructions{Theme: theme}
	if !(duration > 0) || math.IsInf(duration, 0) {
		return out
	}

	n := len(peaks)
	playedBars := currentTime / duration * float64(n)
	if n > 0 {
		width := 1 / float64(n)
		out.Bars = make([]Bar, n)
		for i, peak := range peaks {
			out.Bars[i] = Bar{
				X:      float64(i) * width,
				Width:  width,
				Height: peak,
				Played: float64(i) < playedBars,
			}
		}
	}

	for i, c := range captions {
		start, end, ok := c.Interval()
		if !ok {
			continue
		}
		startX := start / duration
		out.Ranges = append(out.Ranges, Range{
			Index:     i,
			CaptionID: c.ID,
			Start:     startX,
			End:       end / duration,
		})
		out.Markers = append(out.Markers, Marker{CaptionID: c.ID, X: startX})
	}

	playhead := currentTime / duration
	out.Playhead = &playhead
	return out
}
