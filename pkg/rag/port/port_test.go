package port

import (
	"testing"

	"filings-rag-be/pkg/rag/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchResultHits(t *testing.T) {
	t.Run("points arm", func(t *testing.T) {
		r := SearchResult{Points: []Point{{
			ID:    "p-1",
			Score: 0.82,
			Payload: map[string]interface{}{
				"page_content": "Total revenues were $96.7B",
				"metadata":     map[string]interface{}{"source_file": "tsla-10k.pdf", "company": "Tesla"},
			},
		}}}
		hits := r.Hits()
		require.Len(t, hits, 1)
		assert.Equal(t, "Total revenues were $96.7B", hits[0].Content)
		assert.Equal(t, 0.82, hits[0].Score)
		assert.Equal(t, "tsla-10k.pdf", hits[0].Metadata["source_file"])
		assert.Equal(t, "p-1", hits[0].Metadata["id"])
	})

	t.Run("legacy arm", func(t *testing.T) {
		r := SearchResult{Legacy: []LegacyResult{{Content: "caption", Score: 0.4}}}
		hits := r.Hits()
		require.Len(t, hits, 1)
		assert.Equal(t, "caption", hits[0].Content)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, SearchResult{}.Hits())
	})
}

func TestHitToDocumentCopiesMetadata(t *testing.T) {
	h := Hit{Content: "c", Metadata: map[string]interface{}{"k": "v"}, Score: 0.5}
	d := h.ToDocument(state.SourceImage)
	d.Metadata["k"] = "changed"
	assert.Equal(t, "v", h.Metadata["k"])
	assert.Equal(t, state.SourceImage, d.SourceType)
}
