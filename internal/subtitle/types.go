package subtitle

import (
	"io"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(w io.Writer, captions []Caption) error
}

// Caption is a single timed subtitle entry.
// Start and End keep the timestamp text as entered; they are parsed on demand
// so a half-typed value never blocks an edit.
type Caption struct {
	ID    int    `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Interval returns the parsed [start, end] range in seconds.
// ok is false when either bound is not a valid timestamp.
func (c Caption) Interval() (start, end float64, ok bool) {
	start, err := Parse(c.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = Parse(c.End)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// File represents an imported subtitle file
type File struct {
	Captions []Caption
	Language language.Tag
	Format   string // e.g. SRT
	Path     string
}

// Clone returns a deep copy of the caption list.
// A nil input yields an empty, non-nil slice.
func Clone(captions []Caption) []Caption {
	ret := make([]Caption, len(captions))
	copy(ret, captions)
	return ret
}

// Equal reports whether two caption lists are structurally identical.
func Equal(a, b []Caption) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IndexOf returns the list position of the caption with the given id, or -1.
func IndexOf(captions []Caption, id int) int {
	for i, c := range captions {
		if c.ID == id {
			return i
		}
	}
	return -1
}
