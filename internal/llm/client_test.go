package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okResponse = `{
	"id": "gen-1",
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Neon rivers in the night"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     30,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(testConfig(server.URL + "/"))
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(testConfig("https://api.example.com/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat/completions", client.endpoint)
	assert.Equal(t, "test-model", client.Model())

	_, err = NewClient(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid llm configuration")
	assert.Contains(t, err.Error(), "API key is required")
	assert.Contains(t, err.Error(), "model is required")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no url", mutate: func(c *Config) { c.APIURL = "" }, errMsg: "API URL"},
		{name: "no model", mutate: func(c *Config) { c.Model = "" }, errMsg: "model"},
		{name: "no tokens", mutate: func(c *Config) { c.MaxTokens = 0 }, errMsg: "max tokens"},
		{name: "hot", mutate: func(c *Config) { c.Temperature = 2.5 }, errMsg: "temperature"},
		{name: "no timeout", mutate: func(c *Config) { c.Timeout = 0 }, errMsg: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://api.example.com")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestComplete(t *testing.T) {
	var got ChatRequest
	var headers http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(okResponse))
	})
	client.cfg.AppName = "caption-sync"

	reply, err := client.Complete(context.Background(), Request{
		System: "You are a lyricist.",
		Prompt: "Write the first line",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Neon rivers in the night", reply.Content)
	assert.False(t, reply.Truncated())
	assert.Equal(t, 30, reply.Usage.TotalTokens)

	assert.Equal(t, "Bearer test-key", headers.Get("Authorization"))
	assert.Equal(t, "caption-sync", headers.Get("X-Title"))
	assert.Empty(t, headers.Get("HTTP-Referer"))

	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, RoleUser, got.Messages[1].Role)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.Equal(t, 0.7, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestComplete_RequestOverrides(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(okResponse))
	})

	zero := 0.0
	_, err := client.Complete(context.Background(), Request{
		History:     []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		Prompt:      "again",
		MaxTokens:   64,
		Temperature: &zero,
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "again", got.Messages[2].Content)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, 0.0, got.Temperature)
	assert.Nil(t, got.ResponseFormat)
}

func TestComplete_Truncated(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ti"},"finish_reason":"length"}]}`))
	})

	reply, err := client.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, reply.Truncated())
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "provider error object",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Invalid API key","type":"authentication_error","code":401}}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
				assert.Equal(t, "Invalid API key", apiErr.Message)
				assert.Contains(t, err.Error(), "status 401")
			},
		},
		{
			name:   "plain text gateway error",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "502")
				assert.Contains(t, err.Error(), "upstream unavailable")
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"x","choices":[]}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrNoChoices))
			},
		},
		{
			name:   "garbage body",
			status: http.StatusOK,
			body:   "not json",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "decode chat response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), Request{Prompt: "Hello"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestComplete_Concurrent(t *testing.T) {
	var count atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		_, _ = w.Write([]byte(okResponse))
	})

	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := client.Complete(context.Background(), Request{Prompt: "Hello"})
			assert.NoError(t, err)
		}()
	}
	for range 8 {
		<-done
	}
	assert.Equal(t, int32(8), count.Load())
}

// Runs against a real provider when LLM_API_KEY is set in the environment
// or a .env file.
func TestIntegrationWithEnv(t *testing.T) {
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		t.Skip("LLM_API_KEY not set")
	}
	apiURL := os.Getenv("LLM_API_URL")
	if apiURL == "" {
		apiURL = "https://openrouter.ai/api/v1"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "openai/gpt-4o-mini"
	}

	client, err := NewClient(&Config{
		APIKey:      apiKey,
		APIURL:      apiURL,
		Model:       model,
		MaxTokens:   64,
		Temperature: 0,
		Timeout:     60,
	})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), Request{Prompt: "Reply with the single word: pong"})
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(reply.Content), "pong")
}
