// Package llm wraps the generative model service: it builds prompts from
// structured inputs, invokes the model with retry, and parses the textual
// output into a validated file map.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
)

// Client is the narrow capability interface the generator needs from the
// model service: one synchronous prompt-in, text-out call.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiClient implements Client against the Gemini REST API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewGeminiClient creates a Gemini client. The HTTP client is shared and
// connection-pooled; it must be safe for concurrent use.
func NewGeminiClient(opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "gemini api key is required")
	}
	c := &GeminiClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
	}
	if c.model == "" {
		c.model = "gemini-2.5-pro"
	}
	if c.baseURL == "" {
		c.baseURL = "https://generativelanguage.googleapis.com"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return c, nil
}

// Wire types for the generateContent endpoint.

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends a single-turn prompt and returns the first candidate's
// concatenated text parts.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryLLM, "marshal request")
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryLLM, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryNetwork, "model request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryNetwork, "read model response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(apperrors.CategoryLLM, "model returned %s: %s",
			resp.Status, truncate(string(data), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryLLM, "decode model response")
	}
	if parsed.Error != nil {
		return "", apperrors.New(apperrors.CategoryLLM, "model error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return "", apperrors.New(apperrors.CategoryLLM, "model returned no candidates")
	}

	var out bytes.Buffer
	for _, p := range parsed.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	if out.Len() == 0 {
		return "", apperrors.New(apperrors.CategoryLLM, "model returned empty text")
	}
	return out.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
