package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ghostwrite/ai/openrouter"
	gwtest "github.com/teranos/ghostwrite/internal/testing"
	"github.com/teranos/ghostwrite/internal/util"
)

func TestLocalClientChat(t *testing.T) {
	var got localChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"qwen","choices":[{"message":{"role":"assistant","content":"fmt.Println(x)"}}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`))
	}))
	defer server.Close()

	db := gwtest.CreateTestDB(t)
	client := NewLocalClient(LocalClientConfig{
		BaseURL:     server.URL + "/",
		Model:       "qwen2.5-coder:7b",
		ContextSize: util.Ptr(8192),
		DB:          db,
	})

	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{
		SystemPrompt: "sys",
		UserPrompt:   "user",
		MaxTokens:    util.Ptr(64),
		EntityType:   "fast",
	})
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(x)", resp.Content)
	assert.Equal(t, 14, resp.Usage.TotalTokens)

	assert.Equal(t, "qwen2.5-coder:7b", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, 64, *got.MaxTokens)
	require.NotNil(t, got.Options)
	assert.Equal(t, 8192, got.Options.NumCtx)

	var provider string
	var cost float64
	require.NoError(t, db.QueryRow(`SELECT model_provider, cost FROM ai_model_usage`).Scan(&provider, &cost))
	assert.Equal(t, "local", provider)
	assert.Zero(t, cost)
}

func TestLocalClientErrors(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewLocalClient(LocalClientConfig{BaseURL: server.URL, Model: "m"}).
			Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		_, err := NewLocalClient(LocalClientConfig{BaseURL: server.URL, Model: "m"}).
			Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no completion choices")
	})

	t.Run("server down", func(t *testing.T) {
		_, err := NewLocalClient(LocalClientConfig{BaseURL: "http://127.0.0.1:1", Model: "m", TimeoutSeconds: 1}).
			Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
		assert.Error(t, err)
	})
}
