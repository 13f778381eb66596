package jobs

import (
	"errors"
	"time"

	"github.com/MimeLyc/caption-sync/internal/cloud"
)

var (
	ErrJobNotFound = errors.New("upload job not found")
	// ErrJobNotFailed is returned by Retry for jobs that have not failed.
	ErrJobNotFailed = errors.New("upload job has not failed")
	// ErrJobActive is returned by Retry while another job with the same
	// dedupe key is pending or running.
	ErrJobActive = errors.New("an upload for this project is already queued")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   UploadPayload
}

// UploadPayload names the project artefacts to push to one provider.
// Files are output file names; the extension selects the artefact.
type UploadPayload struct {
	Provider    string   `json:"provider"`
	ProjectID   string   `json:"project_id"`
	ProjectName string   `json:"project_name"`
	Files       []string `json:"files"`
}

type UploadJob struct {
	ID        string               `json:"id"`
	Source    string               `json:"source"`
	DedupeKey string               `json:"dedupe_key"`
	Payload   UploadPayload        `json:"payload"`
	Status    Status               `json:"status"`
	Attempts  int                  `json:"attempts"`
	Error     string               `json:"error,omitempty"`
	Results   []cloud.UploadResult `json:"results,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
