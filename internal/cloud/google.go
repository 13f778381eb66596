package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
)

const (
	googleAPI    = "https://www.googleapis.com/drive/v3"
	googleUpload = "https://www.googleapis.com/upload/drive/v3"
	googleFolder = "application/vnd.google-apps.folder"
)

// GoogleDrive talks to the Drive v3 REST API.
type GoogleDrive struct {
	*restClient
}

func NewGoogleDrive(token string, opts ...Option) *GoogleDrive {
	return &GoogleDrive{restClient: newRESTClient(token, opts)}
}

func (g *GoogleDrive) ID() string   { return "google" }
func (g *GoogleDrive) Name() string { return "Google Drive" }

func (g *GoogleDrive) Authenticate(ctx context.Context) error {
	return g.authenticate(ctx, "google drive authenticate", http.MethodGet,
		g.base(googleAPI)+"/about?fields=user", nil)
}

func (g *GoogleDrive) Upload(ctx context.Context, folderID, name string, r io.Reader) (string, error) {
	if err := g.requireAuth(); err != nil {
		return "", err
	}
	parent := folderID
	if parent == "" {
		parent = "root"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	meta, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(meta).Encode(map[string]any{"name": name, "parents": []string{parent}}); err != nil {
		return "", err
	}
	media, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/octet-stream"}})
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(media, r); err != nil {
		return "", fmt.Errorf("google drive upload: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	header := http.Header{}
	header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	var out struct {
		ID string `json:"id"`
	}
	err = g.do(ctx, "google drive upload", http.MethodPost,
		g.base(googleUpload)+"/files?uploadType=multipart", header, &body, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *GoogleDrive) CreateFolder(ctx context.Context, name string) (string, error) {
	if err := g.requireAuth(); err != nil {
		return "", err
	}
	payload := map[string]any{
		"name":     name,
		"mimeType": googleFolder,
		"parents":  []string{"root"},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.doJSON(ctx, "google drive create folder", http.MethodPost, g.base(googleAPI)+"/files", nil, payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ShareLink grants anyone-with-the-link read access and returns the link.
func (g *GoogleDrive) ShareLink(ctx context.Context, fileID string) (string, error) {
	if err := g.requireAuth(); err != nil {
		return "", err
	}
	fileURL := g.base(googleAPI) + "/files/" + url.PathEscape(fileID)

	permission := map[string]string{"role": "reader", "type": "anyone"}
	if err := g.doJSON(ctx, "google drive share", http.MethodPost, fileURL+"/permissions", nil, permission, nil); err != nil {
		return "", err
	}

	var out struct {
		WebViewLink string `json:"webViewLink"`
	}
	if err := g.doJSON(ctx, "google drive share link", http.MethodGet, fileURL+"?fields=webViewLink", nil, nil, &out); err != nil {
		return "", err
	}
	return out.WebViewLink, nil
}
