package persistence

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a project id has no row.
var ErrNotFound = errors.New("not found")

// ProjectSummary is a project listing entry without the caption payload.
type ProjectSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AudioName    string    `json:"audio_name,omitempty"`
	Language     string    `json:"language,omitempty"`
	CaptionCount int       `json:"caption_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}
