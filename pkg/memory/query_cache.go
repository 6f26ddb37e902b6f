package memory

import (
	"time"

	"filings-rag-be/pkg/rag/state"
)

// QueryResult is what the workflow caches for a question.
type QueryResult struct {
	Documents []state.Document `json:"documents"`
	Answer    string           `json:"answer,omitempty"`
	Route     string           `json:"route,omitempty"`
}

type QueryEntry struct {
	Query        string      `json:"query"`
	Context      []string    `json:"context,omitempty"`
	Result       QueryResult `json:"result"`
	CreatedAt    time.Time   `json:"created_at"`
	LastAccessed time.Time   `json:"last_accessed"`
	QualityScore float64     `json:"quality_score"`
	AccessCount  int         `json:"access_count"`
	Seq          uint64      `json:"seq"`
}

type CacheStats struct {
	TotalRequests int `json:"total_requests"`
	CacheHits     int `json:"cache_hits"`
	CacheMisses   int `json:"cache_misses"`
}

// HitRate is hits over lookups, 0 when nothing was looked up.
func (c CacheStats) HitRate() float64 {
	if c.TotalRequests == 0 {
		return 0
	}
	return float64(c.CacheHits) / float64(c.TotalRequests)
}

// CacheQueryResult stores result under the (query, context) key and evicts the
// oldest entries beyond MaxCacheSize.
func (s *Store) CacheQueryResult(query string, result QueryResult, context []string, quality float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheQueryLocked(query, result, context, quality)
}

func (s *Store) cacheQueryLocked(query string, result QueryResult, context []string, quality float64) {
	now := s.now()
	s.seq++
	s.queryCache[QueryKey(query, context)] = &QueryEntry{
		Query:        query,
		Context:      append([]string(nil), context...),
		Result:       cloneResult(result),
		CreatedAt:    now,
		LastAccessed: now,
		QualityScore: quality,
		AccessCount:  1,
		Seq:          s.seq,
	}
	for len(s.queryCache) > s.cfg.MaxCacheSize {
		delete(s.queryCache, oldestQueryKey(s.queryCache))
	}
}

// GetCachedQueryResult returns the entry's result when it is younger than the
// TTL. Expired entries are removed. Every call counts as one request.
func (s *Store) GetCachedQueryResult(query string, context []string) (QueryResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRequests++
	key := QueryKey(query, context)
	now := s.now()
	if entry, ok := s.queryCache[key]; ok {
		if s.valid(entry.CreatedAt, now) {
			entry.AccessCount++
			entry.LastAccessed = now
			s.stats.CacheHits++
			s.metrics.CacheHits++
			return cloneResult(entry.Result), true
		}
		delete(s.queryCache, key)
	}
	s.stats.CacheMisses++
	return QueryResult{}, false
}

// CacheStats returns the user-facing lookup counters.
func (s *Store) CacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CleanupExpired drops expired query and document cache entries.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.queryCache {
		if !s.valid(e.CreatedAt, now) {
			delete(s.queryCache, k)
			removed++
		}
	}
	for k, e := range s.documentCache {
		if !s.valid(e.CreatedAt, now) {
			delete(s.documentCache, k)
			removed++
		}
	}
	return removed
}

func oldestQueryKey(m map[string]*QueryEntry) string {
	var (
		oldestKey string
		oldest    *QueryEntry
	)
	for k, e := range m {
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.Seq < oldest.Seq) {
			oldestKey, oldest = k, e
		}
	}
	return oldestKey
}

func cloneResult(r QueryResult) QueryResult {
	r.Documents = append([]state.Document(nil), r.Documents...)
	return r
}
