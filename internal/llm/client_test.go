package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewGeminiClient(GeminiOptions{
		APIKey:     "test-key",
		Model:      "gemini-2.5-pro",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestGenerate_ConcatenatesCandidateParts(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)

		_ = json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "part one "}, {Text: "part two"}}},
			}},
		})
	})

	out, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
}

func TestGenerate_NonOKStatus(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 429, "message": "quota"}}`, http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerate_NoCandidates(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiResponse{})
	})

	_, err := client.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(GeminiOptions{})
	require.Error(t, err)
}
