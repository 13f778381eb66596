package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxErrorBody = 512

// Option configures a provider.
type Option func(*restClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(rc *restClient) {
		if c != nil {
			rc.httpClient = c
		}
	}
}

// WithEndpoint points the provider at another host, e.g. a test server.
// The vendor's path prefixes are kept.
func WithEndpoint(base string) Option {
	return func(rc *restClient) {
		rc.endpoint = strings.TrimRight(base, "/")
	}
}

// restClient is the bearer-token JSON client shared by the backends.
type restClient struct {
	httpClient *http.Client
	token      string
	endpoint   string

	mu            sync.RWMutex
	authenticated bool
}

func newRESTClient(token string, opts []Option) *restClient {
	rc := &restClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		token:      token,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// base returns the endpoint override or the vendor default.
func (c *restClient) base(vendor string) string {
	if c.endpoint == "" {
		return vendor
	}
	idx := strings.Index(vendor, "://")
	rest := vendor[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return c.endpoint + rest[slash:]
	}
	return c.endpoint
}

func (c *restClient) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *restClient) setAuthenticated(v bool) {
	c.mu.Lock()
	c.authenticated = v
	c.mu.Unlock()
}

// authenticate checks the token with a cheap authenticated request.
func (c *restClient) authenticate(ctx context.Context, op, method, url string, body any) error {
	if c.token == "" {
		return fmt.Errorf("%w: no access token configured", ErrNotAuthenticated)
	}
	if err := c.doJSON(ctx, op, method, url, nil, body, nil); err != nil {
		c.setAuthenticated(false)
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	c.setAuthenticated(true)
	return nil
}

func (c *restClient) requireAuth() error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// doJSON sends payload as JSON (nil sends no body) and decodes the
// response into out when out is not nil.
func (c *restClient) doJSON(ctx context.Context, op, method, url string, header http.Header, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
		if header == nil {
			header = http.Header{}
		}
		header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, op, method, url, header, body, out)
}

func (c *restClient) do(ctx context.Context, op, method, url string, header http.Header, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
