// Package cloud uploads project files to cloud storage services.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnknownProvider is returned for provider ids that are not registered.
	ErrUnknownProvider = errors.New("unknown cloud provider")
	// ErrNotAuthenticated is returned by provider calls made before a
	// successful Authenticate, and by Authenticate when no token is set.
	ErrNotAuthenticated = errors.New("cloud provider not authenticated")
)

// Provider is the capability set every storage backend implements.
type Provider interface {
	// ID is the registry key, e.g. "google".
	ID() string
	// Name is the display name.
	Name() string
	Authenticated() bool
	Authenticate(ctx context.Context) error
	// Upload stores r as name inside folderID, or the drive root when
	// folderID is empty, and returns the new file id.
	Upload(ctx context.Context, folderID, name string, r io.Reader) (string, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	ShareLink(ctx context.Context, fileID string) (string, error)
}

// File is one named payload to upload.
type File struct {
	Name string
	Data []byte
}

// UploadOptions tune Manager.Upload.
type UploadOptions struct {
	// Folder is created before uploading when not empty.
	Folder string
}

// UploadResult reports the outcome of one upload. Failures are carried in
// Error instead of a Go error.
type UploadResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	FileID    string `json:"file_id,omitempty"`
	ShareLink string `json:"share_link,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StatusError is returned when a storage API answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}
