package cloud

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/caption-sync/pkg/log"
)

const defaultUploadWorkers = 3

// Manager uploads files through the providers of a registry.
type Manager struct {
	registry *Registry
	workers  int
	logger   *log.Logger
}

type ManagerOption func(*Manager)

// WithWorkers bounds how many files UploadProjectFiles sends at once.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		workers:  defaultUploadWorkers,
		logger:   log.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers lists the registered providers.
func (m *Manager) Providers() []Provider {
	return m.registry.List()
}

// Provider returns the provider registered under id.
func (m *Manager) Provider(id string) (Provider, error) {
	return m.registry.Get(id)
}

// Upload sends one file to the provider, authenticating first if needed,
// creating opts.Folder when set, and resolving a share link.
func (m *Manager) Upload(ctx context.Context, providerID string, file File, opts UploadOptions) UploadResult {
	provider, folderID, err := m.prepare(ctx, providerID, opts.Folder)
	if err != nil {
		return m.failed(file.Name, providerID, err)
	}
	return m.upload(ctx, provider, folderID, file)
}

// UploadProjectFiles creates the project folder once and uploads files into
// it concurrently. Results are in the same order as files.
func (m *Manager) UploadProjectFiles(ctx context.Context, providerID string, files []File, projectName string) []UploadResult {
	results := make([]UploadResult, len(files))

	provider, folderID, err := m.prepare(ctx, providerID, projectName)
	if err != nil {
		for i, f := range files {
			results[i] = m.failed(f.Name, providerID, err)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, f := range files {
		g.Go(func() error {
			results[i] = m.upload(ctx, provider, folderID, f)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) prepare(ctx context.Context, providerID, folder string) (Provider, string, error) {
	provider, err := m.registry.Get(providerID)
	if err != nil {
		return nil, "", err
	}
	if !provider.Authenticated() {
		if err := provider.Authenticate(ctx); err != nil {
			return nil, "", err
		}
	}
	if folder == "" {
		return provider, "", nil
	}
	folderID, err := provider.CreateFolder(ctx, folder)
	if err != nil {
		return nil, "", fmt.Errorf("create folder %q: %w", folder, err)
	}
	return provider, folderID, nil
}

func (m *Manager) upload(ctx context.Context, provider Provider, folderID string, file File) UploadResult {
	fileID, err := provider.Upload(ctx, folderID, file.Name, bytes.NewReader(file.Data))
	if err != nil {
		return m.failed(file.Name, provider.ID(), err)
	}
	link, err := provider.ShareLink(ctx, fileID)
	if err != nil {
		return m.failed(file.Name, provider.ID(), err)
	}
	m.logger.Info("Uploaded %s to %s (%s)", file.Name, provider.Name(), fileID)
	return UploadResult{Name: file.Name, Success: true, FileID: fileID, ShareLink: link}
}

func (m *Manager) failed(name, providerID string, err error) UploadResult {
	m.logger.Error("Upload of %s to %s failed: %v", name, providerID, err)
	return UploadResult{Name: name, Error: err.Error()}
}
