package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/caption-sync/internal/cloud"
	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
)

// ProjectLoader resolves the project an upload job refers to.
type ProjectLoader interface {
	LoadProject(ctx context.Context, id string) (session.Project, error)
}

// Uploader is the part of cloud.Manager the executor needs.
type Uploader interface {
	UploadProjectFiles(ctx context.Context, providerID string, files []cloud.File, projectName string) []cloud.UploadResult
}

// Artefact extensions. ".srt" is the caption export, ".txt" the plain
// lyrics and ".json" the project document.
const (
	extSRT  = ".srt"
	extTXT  = ".txt"
	extJSON = ".json"
)

// DefaultFiles names the artefacts uploaded when a request lists none.
func DefaultFiles(projectName string) []string {
	base := strings.TrimSpace(projectName)
	if base == "" {
		base = "captions"
	}
	return []string{base + extSRT, base + extTXT}
}

// SupportedFile reports whether name maps to an artefact.
func SupportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case extSRT, extTXT, extJSON:
		return strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name))) != ""
	default:
		return false
	}
}

// NewUploadExecutor builds an Executor that renders the job's artefacts
// from the stored project and uploads them into a folder named after it.
// The job fails when any file fails.
func NewUploadExecutor(projects ProjectLoader, uploader Uploader) Executor {
	return func(ctx context.Context, job *UploadJob) ([]cloud.UploadResult, error) {
		project, err := projects.LoadProject(ctx, job.Payload.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}

		files := make([]cloud.File, 0, len(job.Payload.Files))
		for _, name := range job.Payload.Files {
			data, err := Artefact(project, name)
			if err != nil {
				return nil, err
			}
			files = append(files, cloud.File{Name: name, Data: data})
		}

		folder := job.Payload.ProjectName
		if folder == "" {
			folder = project.Name
		}
		results := uploader.UploadProjectFiles(ctx, job.Payload.Provider, files, folder)

		failed := 0
		for _, res := range results {
			if !res.Success {
				failed++
			}
		}
		if failed > 0 {
			return results, fmt.Errorf("%d of %d file(s) failed to upload", failed, len(results))
		}
		return results, nil
	}
}

// Artefact renders the file called name for project.
func Artefact(project session.Project, name string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case extSRT:
		return []byte(subtitle.Export(project.Captions)), nil
	case extTXT:
		lines := make([]string, 0, len(project.Captions))
		for _, c := range project.Captions {
			lines = append(lines, c.Text)
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	case extJSON:
		return json.MarshalIndent(project, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported file type: %s", name)
	}
}
