package llm

import (
	"errors"
	"net/http"
)

// Config points the client at any OpenAI-compatible endpoint (OpenAI,
// OpenRouter, a local gateway).
type Config struct {
	APIKey      string  `json:"-" toml:"api_key"`
	APIURL      string  `json:"api_url" toml:"api_url"`
	Model       string  `json:"model" toml:"model"`
	MaxTokens   int     `json:"max_tokens" toml:"max_tokens"`
	Temperature float64 `json:"temperature" toml:"temperature"`
	// Timeout is in seconds.
	Timeout int    `json:"timeout" toml:"timeout"`
	SiteURL string `json:"site_url" toml:"site_url"`
	AppName string `json:"app_name" toml:"app_name"`
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API key is required"))
	}
	if c.APIURL == "" {
		errs = append(errs, errors.New("API URL is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, errors.New("max tokens must be greater than 0"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	if c.Timeout < 1 {
		errs = append(errs, errors.New("timeout must be greater than 0"))
	}
	return errors.Join(errs...)
}

// setHeaders adds auth and the OpenRouter attribution headers.
func (c *Config) setHeaders(h http.Header) {
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("Content-Type", "application/json")
	if c.SiteURL != "" {
		h.Set("HTTP-Referer", c.SiteURL)
	}
	if c.AppName != "" {
		h.Set("X-Title", c.AppName)
	}
}
