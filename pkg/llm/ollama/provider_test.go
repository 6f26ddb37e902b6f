package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"filings-rag-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: llm.Message{Role: "assistant", Content: `{"binary_score":"yes"}`}, Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3.1")
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "grade"},
		{Role: "model", Content: "earlier"},
		{Role: "user", Content: "question"},
	}, llm.WithJSON(), llm.WithMaxTokens(64))
	require.NoError(t, err)

	assert.Equal(t, `{"binary_score":"yes"}`, out)
	assert.Equal(t, "llama3.1", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.False(t, got.Stream)
}

func TestChatErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()
		_, err := NewOllamaProvider(srv.URL, "missing").Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(chatResponse{Done: true})
		}))
		defer srv.Close()
		_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "hi")
		assert.True(t, errors.Is(err, llm.ErrEmptyResponse))
	})
}
