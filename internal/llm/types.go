package llm

import (
	"errors"
	"fmt"
)

// ErrNoChoices is returned when a 2xx reply carries no completion.
var ErrNoChoices = errors.New("completion has no choices")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Zero MaxTokens and a nil Temperature
// fall back to the client config.
type Request struct {
	System string
	// History holds earlier turns, placed between System and Prompt.
	History     []Message
	Prompt      string
	MaxTokens   int
	Temperature *float64
	// JSON asks the model for a single JSON object.
	JSON bool
}

// Reply is the first choice of a completion.
type Reply struct {
	Content      string
	FinishReason string
	Model        string
	Usage        Usage
}

// Truncated reports whether the model stopped at the token limit.
func (r Reply) Truncated() bool {
	return r.FinishReason == "length"
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is the /chat/completions request body.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

type choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// APIError is the error object of an OpenAI-compatible provider. Code is
// a string for some providers and a number for others.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("llm api: %s", e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("llm api status %d: %s", e.Status, e.Message)
	}
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	return msg
}
