// Package prompt generates a song title, lyrics, a music style prompt and
// video scene prompts from a short project brief.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/caption-sync/internal/llm"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

// ErrEmptyResult is returned when the model reply has no lyrics.
var ErrEmptyResult = errors.New("prompt result has no lyrics")

// ProjectBrief describes the song to generate.
type ProjectBrief struct {
	Language        language.Tag `json:"-"`
	Description     string       `json:"description"`
	DurationSeconds int          `json:"duration_seconds"`
}

// Result is the generated material.
type Result struct {
	Title        string   `json:"title"`
	Lyrics       string   `json:"lyrics"`
	StylePrompt  string   `json:"style_prompt"`
	VideoPrompts []string `json:"video_prompts"`
}

// Generator produces a Result for a brief.
type Generator interface {
	Generate(ctx context.Context, brief ProjectBrief) (Result, error)
}

const systemPrompt = `You are a songwriter and music video director.
Reply with a single JSON object and nothing else, with these keys:
"title" (string), "lyrics" (string, sections labelled like "(Verse 1)" and "(Chorus)"),
"style_prompt" (string describing genre, instruments, vocals and mood),
"video_prompts" (array of 4 short scene descriptions).`

// LLMGenerator asks an OpenAI-compatible chat model for the material.
type LLMGenerator struct {
	client *llm.Client
	logger *log.Logger
}

// NewLLMGenerator wraps client.
func NewLLMGenerator(client *llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client, logger: log.GetLogger()}
}

func (g *LLMGenerator) Generate(ctx context.Context, brief ProjectBrief) (Result, error) {
	reply, err := g.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: userPrompt(brief),
		JSON:   true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate prompt: %w", err)
	}
	g.logger.Debug("Prompt reply: %d bytes, %d tokens", len(reply.Content), reply.Usage.TotalTokens)
	if reply.Truncated() {
		g.logger.Warn("Prompt reply hit the token limit; raise LLM_MAX_TOKENS if parsing fails")
	}

	result, err := ParseResult(reply.Content)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func userPrompt(brief ProjectBrief) string {
	var b strings.Builder
	lang := brief.Language
	if lang == language.Und {
		lang = language.English
	}
	fmt.Fprintf(&b, "Write the lyrics in %s.\n", display.English.Tags().Name(lang))
	if brief.DurationSeconds > 0 {
		fmt.Fprintf(&b, "The song should last about %d seconds.\n", brief.DurationSeconds)
	}
	desc := strings.TrimSpace(brief.Description)
	if desc == "" {
		desc = "Surprise me."
	}
	fmt.Fprintf(&b, "Idea: %s\n", desc)
	return b.String()
}

// ParseResult decodes a model reply. A surrounding ```json fence and any
// text outside the outermost braces are ignored.
func ParseResult(reply string) (Result, error) {
	body := strings.TrimSpace(reply)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return Result{}, fmt.Errorf("parse prompt reply: %w", err)
	}
	if strings.TrimSpace(result.Lyrics) == "" {
		return Result{}, ErrEmptyResult
	}
	return result, nil
}

// MockGenerator returns a fixed sample. It is used when no model is
// configured.
type MockGenerator struct{}

func (MockGenerator) Generate(ctx context.Context, brief ProjectBrief) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		Title:       "Cosmic Drift",
		Lyrics:      mockLyrics,
		StylePrompt: "Epic cinematic synthwave, futuristic, ethereal female vocals, driving beat, atmospheric pads, reminiscent of Blade Runner soundtrack, 80s retro-futurism, hopeful yet melancholic tone.",
		VideoPrompts: []string{
			"Aerial shot of a sprawling futuristic city at night, neon lights reflecting on wet streets, flying vehicles weaving between skyscrapers.",
			"Close-up of holographic stars swirling around a silhouetted figure, glowing particles drifting in slow motion.",
			"Fast-paced montage of abstract geometric shapes pulsing to the beat, vibrant colours shifting from blue to magenta.",
			"A lone figure standing on a high balcony overlooking the city at dawn, wind in their hair, the first light breaking through the clouds.",
		},
	}, nil
}

const mockLyrics = "(Verse 1)\nNeon rivers in the night\nChasing stars till morning light\nIn this city, made of glass\nFuture memories of the past\n\n(Chorus)\nWe're on a cosmic drift, a silent flight\nPainting dreams in shades of light\nA fleeting moment, in the stream\nLiving out a vibrant dream"

var (
	_ Generator = (*LLMGenerator)(nil)
	_ Generator = MockGenerator{}
)
