package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	dropboxAPI     = "https://api.dropboxapi.com/2"
	dropboxContent = "https://content.dropboxapi.com/2"
)

// Dropbox talks to the Dropbox v2 HTTP API.
type Dropbox struct {
	*restClient
}

func NewDropbox(token string, opts ...Option) *Dropbox {
	return &Dropbox{restClient: newRESTClient(token, opts)}
}

func (d *Dropbox) ID() string   { return "dropbox" }
func (d *Dropbox) Name() string { return "Dropbox" }

func (d *Dropbox) Authenticate(ctx context.Context) error {
	return d.authenticate(ctx, "dropbox authenticate", http.MethodPost,
		d.base(dropboxAPI)+"/users/get_current_account", nil)
}

// Upload stores the file under "/name", or "<folderID>/name" when a folder
// id is given. Name clashes are renamed by Dropbox.
func (d *Dropbox) Upload(ctx context.Context, folderID, name string, r io.Reader) (string, error) {
	if err := d.requireAuth(); err != nil {
		return "", err
	}
	path := "/" + name
	if folderID != "" {
		path = strings.TrimRight(folderID, "/") + "/" + name
	}
	arg, err := headerJSON(map[string]any{"path": path, "mode": "add", "autorename": true})
	if err != nil {
		return "", err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Dropbox-API-Arg", arg)
	var out struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, "dropbox upload", http.MethodPost, d.base(dropboxContent)+"/files/upload", header, r, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (d *Dropbox) CreateFolder(ctx context.Context, name string) (string, error) {
	if err := d.requireAuth(); err != nil {
		return "", err
	}
	payload := map[string]any{"path": "/" + name, "autorename": true}
	var out struct {
		Metadata struct {
			ID string `json:"id"`
		} `json:"metadata"`
	}
	if err := d.doJSON(ctx, "dropbox create folder", http.MethodPost, d.base(dropboxAPI)+"/files/create_folder_v2", nil, payload, &out); err != nil {
		return "", err
	}
	return out.Metadata.ID, nil
}

func (d *Dropbox) ShareLink(ctx context.Context, fileID string) (string, error) {
	if err := d.requireAuth(); err != nil {
		return "", err
	}
	payload := map[string]any{
		"path":     fileID,
		"settings": map[string]string{"requested_visibility": "public"},
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := d.doJSON(ctx, "dropbox share link", http.MethodPost, d.base(dropboxAPI)+"/sharing/create_shared_link_with_settings", nil, payload, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// headerJSON encodes v for an HTTP header, escaping non-ASCII characters.
func headerJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(data) {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			fmt.Fprintf(&b, "\\u%04x\\u%04x", 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&b, "\\u%04x", r)
	}
	return b.String(), nil
}
