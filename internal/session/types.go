// Package session wires the editor core together: playback drives the
// active caption and the render model, edits go through history.
package session

import (
	"errors"
	"time"

	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
	"github.com/MimeLyc/caption-sync/internal/waveform"
)

var (
	// ErrCaptionShape is returned when an edit adds, removes or reorders
	// captions. Only start, end and text may change after import.
	ErrCaptionShape = errors.New("caption list must keep the imported ids")
	// ErrCaptionIndex is returned for an out-of-range caption index.
	ErrCaptionIndex = errors.New("caption index out of range")
	// ErrUnknownField is returned by EditField for fields other than
	// start, end and text.
	ErrUnknownField = errors.New("unknown caption field")
	// ErrCaptionNotFound is returned by SeekToCaption for unknown ids.
	ErrCaptionNotFound = errors.New("caption not found")
)

// Field names accepted by EditField.
const (
	FieldStart = "start"
	FieldEnd   = "end"
	FieldText  = "text"
)

// EventKind tells subscribers what changed.
type EventKind string

const (
	EventTick     EventKind = "tick"
	EventCaptions EventKind = "captions"
	EventWaveform EventKind = "waveform"
	EventAudio    EventKind = "audio"
)

// Event is published after every time update and every state change.
type Event struct {
	Kind        EventKind         `json:"kind"`
	Playback    playback.Snapshot `json:"playback"`
	ActiveIndex int               `json:"active_index"`
	Revision    uint64            `json:"revision"`
}

// State is the full editor state exposed to the host UI.
type State struct {
	ProjectID     string            `json:"project_id"`
	Name          string            `json:"name"`
	AudioName     string            `json:"audio_name,omitempty"`
	Language      string            `json:"language,omitempty"`
	Playback      playback.Snapshot `json:"playback"`
	ActiveIndex   int               `json:"active_index"`
	CaptionCount  int               `json:"caption_count"`
	CanUndo       bool              `json:"can_undo"`
	CanRedo       bool              `json:"can_redo"`
	Waveform      waveform.Status   `json:"waveform"`
	WaveformError string            `json:"waveform_error,omitempty"`
	Dirty         bool              `json:"dirty"`
	Revision      uint64            `json:"revision"`
}

// Project is the persisted part of a session.
type Project struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	AudioName string             `json:"audio_name,omitempty"`
	Language  string             `json:"language,omitempty"`
	Captions  []subtitle.Caption `json:"captions"`
	UpdatedAt time.Time          `json:"updated_at"`
}
