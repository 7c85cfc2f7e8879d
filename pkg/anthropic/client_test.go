package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func messageJSON(stop string, texts ...string) map[string]any {
	content := make([]map[string]any, 0, len(texts))
	for _, t := range texts {
		content = append(content, map[string]any{"type": "text", "text": t})
	}
	return map[string]any{
		"id":          "msg_test_001",
		"type":        "message",
		"role":        "assistant",
		"content":     content,
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": stop,
		"usage": map[string]any{
			"input_tokens":                10,
			"output_tokens":               5,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     0,
		},
	}
}

func TestComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int64  `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-5-20250929", body.Model)
		assert.Equal(t, int64(1024), body.MaxTokens)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		require.Len(t, body.Messages[0].Content, 1)
		assert.Equal(t, "grade this thread", body.Messages[0].Content[0].Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageJSON("end_turn", "Hello ", "from test")) //nolint:errcheck
	}))
	defer ts.Close()

	c, err := newTestClient(ts.URL).Complete(context.Background(), Request{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Prompt:    "grade this thread",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", c.ID)
	assert.Equal(t, "Hello from test", c.Text)
	assert.False(t, c.Truncated())
	assert.Equal(t, Usage{Input: 10, Output: 5}, c.Usage)
}

func TestComplete_Truncated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageJSON(StopMaxTokens, "cut off")) //nolint:errcheck
	}))
	defer ts.Close()

	c, err := newTestClient(ts.URL).Complete(context.Background(), Request{Model: "m", MaxTokens: 1, Prompt: "p"})
	require.NoError(t, err)
	assert.True(t, c.Truncated())
}

func TestComplete_Overloaded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Complete(context.Background(), Request{Model: "m", MaxTokens: 1, Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, 529, StatusCode(err))
}

func TestCompletion_SkipsNonTextBlocks(t *testing.T) {
	c := completion(&sdk.Message{
		ID:    "msg_test_123",
		Model: "claude-sonnet-4-5-20250929",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello "},
			{Type: "thinking"},
			{Type: "text", Text: "world"},
		},
		Usage: sdk.Usage{InputTokens: 100, OutputTokens: 50, CacheReadInputTokens: 3000},
	})
	assert.Equal(t, "Hello world", c.Text)
	assert.Equal(t, int64(3000), c.Usage.CacheRead)
}

func TestUsage_Cost(t *testing.T) {
	u := Usage{Input: 1_000_000, Output: 1_000_000}
	assert.InDelta(t, 18.0, u.Cost("claude-sonnet-4-5-20250929"), 1e-9)
	assert.InDelta(t, 6.0, u.Cost("claude-haiku-4-5-20251001"), 1e-9)
	assert.Zero(t, u.Cost("unknown-model"))

	cached := Usage{CacheWrite: 1_000_000, CacheRead: 1_000_000}
	assert.InDelta(t, 3.0*1.25+3.0*0.1, cached.Cost("claude-sonnet-4-5-20250929"), 1e-9)
}

func TestUsage_Fields(t *testing.T) {
	fields := Usage{Input: 1}.Fields("claude-sonnet-4-5-20250929")
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	assert.Contains(t, keys, "estimated_cost_usd")
	assert.Contains(t, keys, "input_tokens")
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(assert.AnError))
}
