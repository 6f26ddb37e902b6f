package retrieval

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filings-rag-be/pkg/rag/port"
)

type constEmbedder struct{ v []float32 }

func (c constEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return c.v, nil }
func (c constEmbedder) Dimensions() int { return len(c.v) }

func TestNewPgvectorRetrieverRequiresDeps(t *testing.T) {
	_, err := NewPgvectorRetriever(nil, constEmbedder{})
	assert.Error(t, err)
}

// Runs against a database prepared by `ask migrate`; skipped otherwise.
func TestPgvectorRetrieverSearch(t *testing.T) {
	url := os.Getenv("RAG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RAG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	emb := make([]float32, 768)
	emb[0] = 1
	r, err := NewPgvectorRetriever(pool, constEmbedder{v: emb})
	require.NoError(t, err)

	v, err := r.Embed(ctx, "revenue")
	require.NoError(t, err)

	res, err := r.Search(ctx, v, port.CollectionText, 3)
	require.NoError(t, err)
	assert.NotNil(t, res.Points)
	assert.LessOrEqual(t, len(res.Hits()), 3)
}
