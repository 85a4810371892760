// Package llmclient provides the pipeline's provider-agnostic LLM contract
// (§6): a single Complete method accepting a system/user prompt pair, an
// optional structured-output schema, and per-call token/timeout limits.
// Grounded on the teacher's internal/llm Client, narrowed from its many
// digest-specific helper methods down to the one generic call Stage 1 and
// Stage 3 need, with a Gemini backend.
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Limits bounds a single Complete call.
type Limits struct {
	MaxTokens   int32
	Temperature float32
	Timeout     time.Duration
}

// Schema describes the structured JSON output the caller expects; nil means
// free-form text.
type Schema = genai.Schema

// Client is the provider-agnostic capability Stage 1 and Stage 3 depend on.
// Passed in as an injected dependency rather than reached via package-level
// state, so stages can be tested against a fake.
type Client interface {
	Complete(ctx context.Context, system, user string, schema *Schema, limits Limits) (string, error)
}

// GeminiClient is the Gemini-backed implementation of Client.
type GeminiClient struct {
	model   string
	gClient *genai.Client
}

// NewGeminiClient builds a Client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: creating gemini client: %w", err)
	}
	return &GeminiClient{model: model, gClient: gc}, nil
}

// Complete issues a single structured or free-form completion call, applying
// limits.Timeout as a context deadline.
func (c *GeminiClient) Complete(ctx context.Context, system, user string, schema *Schema, limits Limits) (string, error) {
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	prompt := user
	if system != "" {
		prompt = system + "\n\n" + user
	}
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{}
	if limits.MaxTokens > 0 {
		config.MaxOutputTokens = limits.MaxTokens
	}
	if limits.Temperature > 0 {
		t := limits.Temperature
		config.Temperature = &t
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("llmclient: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llmclient: empty response from model")
	}
	return text, nil
}

// ExtractJSON pulls the first JSON object or array out of raw model output,
// tolerating ```json fenced code blocks and leading/trailing commentary —
// the contract's "fenced-JSON tolerance" requirement.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	open := s[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
