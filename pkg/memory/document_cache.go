package memory

import (
	"time"

	"filings-rag-be/pkg/rag/state"
)

type DocumentEntry struct {
	Documents      []state.Document `json:"documents"`
	Scores         []float64        `json:"scores"`
	CollectionType string           `json:"collection_type"`
	CreatedAt      time.Time        `json:"created_at"`
	Seq            uint64           `json:"seq"`
}

// CacheDocuments stores a search result under the hash of its query embedding.
func (s *Store) CacheDocuments(embedding []float32, collection string, docs []state.Document, scores []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheDocumentsLocked(embedding, collection, docs, scores)
}

func (s *Store) cacheDocumentsLocked(embedding []float32, collection string, docs []state.Document, scores []float64) {
	s.seq++
	s.documentCache[EmbeddingKey(embedding, collection)] = &DocumentEntry{
		Documents:      append([]state.Document(nil), docs...),
		Scores:         append([]float64(nil), scores...),
		CollectionType: collection,
		CreatedAt:      s.now(),
		Seq:            s.seq,
	}
	for len(s.documentCache) > s.cfg.MaxCacheSize {
		delete(s.documentCache, oldestDocumentKey(s.documentCache))
	}
}

// GetCachedDocuments returns a live entry for the exact embedding. Lookups
// here are internal and do not touch CacheStats.
func (s *Store) GetCachedDocuments(embedding []float32, collection string) (DocumentEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EmbeddingKey(embedding, collection)
	entry, ok := s.documentCache[key]
	if !ok {
		return DocumentEntry{}, false
	}
	if !s.valid(entry.CreatedAt, s.now()) {
		delete(s.documentCache, key)
		return DocumentEntry{}, false
	}
	out := *entry
	out.Documents = append([]state.Document(nil), entry.Documents...)
	out.Scores = append([]float64(nil), entry.Scores...)
	return out, true
}

func oldestDocumentKey(m map[string]*DocumentEntry) string {
	var (
		oldestKey string
		oldest    *DocumentEntry
	)
	for k, e := range m {
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.Seq < oldest.Seq) {
			oldestKey, oldest = k, e
		}
	}
	return oldestKey
}
