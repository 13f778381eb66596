// Package llm is a small chat completion client for OpenAI-compatible APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 512

// Client is safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	endpoint string
}

func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm configuration: %w", err)
	}
	return &Client{
		cfg:      *cfg,
		http:     &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		endpoint: strings.TrimRight(cfg.APIURL, "/") + "/chat/completions",
	}, nil
}

func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends req and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Reply, error) {
	body := c.chatRequest(req)
	resp, err := c.post(ctx, body)
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrNoChoices
	}
	first := resp.Choices[0]
	return Reply{
		Content:      first.Message.Content,
		FinishReason: first.FinishReason,
		Model:        resp.Model,
		Usage:        resp.Usage,
	}, nil
}

func (c *Client) chatRequest(req Request) ChatRequest {
	messages := make([]Message, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	out := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil && *req.Temperature >= 0 && *req.Temperature <= 2 {
		out.Temperature = *req.Temperature
	}
	if req.JSON {
		out.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return out
}

func (c *Client) post(ctx context.Context, body ChatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	c.cfg.setHeaders(httpReq.Header)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	switch {
	case parsed.Error != nil && parsed.Error.Message != "":
		parsed.Error.Status = resp.StatusCode
		return nil, parsed.Error
	case !ok:
		return nil, &APIError{Status: resp.StatusCode, Message: truncate(string(raw), maxErrorBody)}
	case decodeErr != nil:
		return nil, fmt.Errorf("decode chat response: %w", decodeErr)
	}
	return &parsed, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
