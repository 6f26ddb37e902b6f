package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "Ford revenue", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{1, 2, 2}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "", 0)
	assert.Equal(t, 768, p.Dimensions())

	v, err := p.Embed(context.Background(), "Ford revenue")
	require.NoError(t, err)
	require.Len(t, v, 3)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestOllamaEmbedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m", 3).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
