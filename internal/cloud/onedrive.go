package cloud

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

const graphAPI = "https://graph.microsoft.com/v1.0"

// OneDrive talks to the Microsoft Graph drive API.
type OneDrive struct {
	*restClient
}

func NewOneDrive(token string, opts ...Option) *OneDrive {
	return &OneDrive{restClient: newRESTClient(token, opts)}
}

func (o *OneDrive) ID() string   { return "onedrive" }
func (o *OneDrive) Name() string { return "OneDrive" }

func (o *OneDrive) Authenticate(ctx context.Context) error {
	return o.authenticate(ctx, "onedrive authenticate", http.MethodGet, o.base(graphAPI)+"/me/drive", nil)
}

func (o *OneDrive) Upload(ctx context.Context, folderID, name string, r io.Reader) (string, error) {
	if err := o.requireAuth(); err != nil {
		return "", err
	}
	target := o.base(graphAPI) + "/me/drive/root:/" + url.PathEscape(name) + ":/content"
	if folderID != "" {
		target = o.base(graphAPI) + "/me/drive/items/" + url.PathEscape(folderID) + ":/" + url.PathEscape(name) + ":/content"
	}

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	var out struct {
		ID string `json:"id"`
	}
	if err := o.do(ctx, "onedrive upload", http.MethodPut, target, header, r, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (o *OneDrive) CreateFolder(ctx context.Context, name string) (string, error) {
	if err := o.requireAuth(); err != nil {
		return "", err
	}
	payload := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := o.doJSON(ctx, "onedrive create folder", http.MethodPost, o.base(graphAPI)+"/me/drive/root/children", nil, payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (o *OneDrive) ShareLink(ctx context.Context, fileID string) (string, error) {
	if err := o.requireAuth(); err != nil {
		return "", err
	}
	payload := map[string]string{"type": "view", "scope": "anonymous"}
	var out struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	target := o.base(graphAPI) + "/me/drive/items/" + url.PathEscape(fileID) + "/createLink"
	if err := o.doJSON(ctx, "onedrive share link", http.MethodPost, target, nil, payload, &out); err != nil {
		return "", err
	}
	return out.Link.WebURL, nil
}
