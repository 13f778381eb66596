package render

import "math"

// Rect is a filled rectangle in pixel space.
type Rect struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Fill string  `json:"fill"`
}

const (
	barGap    = 1.0
	lineWidth = 2.0
)

// Project maps the instructions onto a width x height canvas in paint
// order: bars, caption ranges with their markers, then the playhead.
func (in Instructions) Project(width, height float64) []Rect {
	if in.Empty() || width <= 0 || height <= 0 {
		return nil
	}

	rects := make([]Rect, 0, len(in.Bars)+2*len(in.Ranges)+1)
	for _, b := range in.Bars {
		h := b.Height * height
		fill := in.Theme.Unplayed
		if b.Played {
			fill = in.Theme.Played
		}
		rects = append(rects, Rect{
			X:    b.X * width,
			Y:    (height - h) / 2,
			W:    math.Max(0, b.Width*width-barGap),
			H:    h,
			Fill: fill,
		})
	}

	for i, r := range in.Ranges {
		startX := r.Start * width
		rects = append(rects, Rect{X: startX, W: r.End*width - startX, H: height, Fill: in.Theme.Range})
		if i < len(in.Markers) {
			rects = append(rects, Rect{X: in.Markers[i].X * width, W: lineWidth, H: height, Fill: in.Theme.Marker})
		}
	}

	if in.Playhead != nil {
		rects = append(rects, Rect{X: *in.Playhead * width, W: lineWidth, H: height, Fill: in.Theme.Playhead})
	}
	return rects
}
