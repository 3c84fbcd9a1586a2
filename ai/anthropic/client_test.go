package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ghostwrite/ai/openrouter"
	"github.com/teranos/ghostwrite/internal/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "sk-ant-test"})
	client.SetHTTPClient(server.Client())
	client.SetBaseURL(server.URL)
	client.retryDelay = time.Millisecond
	return client
}

func TestChat(t *testing.T) {
	var got MessagesRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(MessagesResponse{
			Content: []ContentBlock{{Type: "text", Text: "x := 1"}, {Type: "text", Text: "\ny := 2"}},
			Usage:   Usage{InputTokens: 30, OutputTokens: 6},
		})
	})

	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{
		SystemPrompt: "complete",
		UserPrompt:   "<CURSOR>",
		MaxTokens:    util.Ptr(64),
		Stop:         []string{"```"},
	})
	require.NoError(t, err)

	assert.Equal(t, "x := 1\ny := 2", resp.Content)
	assert.Equal(t, 36, resp.Usage.TotalTokens)
	assert.Equal(t, "complete", got.System)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, []string{"```"}, got.StopSequences)
	assert.Equal(t, DefaultModel, got.Model)
}

func TestChatRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(529)
			return
		}
		json.NewEncoder(w).Encode(MessagesResponse{Content: []ContentBlock{{Type: "text", Text: "ok"}}})
	})

	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatWithoutKey(t *testing.T) {
	_, err := NewClient(Config{}).Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
	assert.Error(t, err)
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.8+4.0, CalculateCost("claude-3-5-haiku-latest", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 3.0, CalculateCost("claude-unknown", 1_000_000, 0), 1e-9)
}
