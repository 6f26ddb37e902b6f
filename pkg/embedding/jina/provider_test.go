package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJinaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v2-base-en", req.Model)
		assert.Equal(t, []string{"GM risk factors"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,3,4]}]}`))
	}))
	defer srv.Close()

	p := NewJinaProvider("key", srv.URL, "", 0)
	assert.Equal(t, 768, p.Dimensions())

	v, err := p.Embed(context.Background(), "GM risk factors")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, v, 1e-6)
}

func TestJinaEmbedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http status", http.StatusUnauthorized, `{"detail":"bad key"}`, "status 401"},
		{"api error", http.StatusOK, `{"error":{"message":"quota"}}`, "quota"},
		{"empty", http.StatusOK, `{"data":[]}`, "empty embeddings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewJinaProvider("key", srv.URL, "m", 3).Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
