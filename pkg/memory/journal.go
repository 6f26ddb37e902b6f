package memory

import (
	"context"
	"sync"

	"filings-rag-be/pkg/rag/state"
)

// Journal buffers the writes of one workflow execution. Nothing reaches the
// Store until Commit, which applies the whole batch under a single lock, so an
// execution aborted half way leaves the Store untouched.
type Journal struct {
	mu        sync.Mutex
	ops       []func(*Store)
	committed bool
}

func (s *Store) Begin() *Journal {
	return &Journal{}
}

func (j *Journal) add(op func(*Store)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op)
}

// Len is the number of pending writes.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.ops)
}

func (j *Journal) CacheQueryResult(query string, result QueryResult, context []string, quality float64) {
	result = cloneResult(result)
	context = append([]string(nil), context...)
	j.add(func(s *Store) { s.cacheQueryLocked(query, result, context, quality) })
}

func (j *Journal) CacheDocuments(embedding []float32, collection string, docs []state.Document, scores []float64) {
	embedding = append([]float32(nil), embedding...)
	docs = append([]state.Document(nil), docs...)
	scores = append([]float64(nil), scores...)
	j.add(func(s *Store) { s.cacheDocumentsLocked(embedding, collection, docs, scores) })
}

func (j *Journal) LearnRoutingPattern(query, route string, quality, responseTime float64) {
	kind := ClassifyQuery(query)
	j.add(func(s *Store) { s.learnRoutingLocked(kind, route, quality, responseTime) })
}

func (j *Journal) AppendConversation(t Turn) {
	j.add(func(s *Store) { s.appendConversationLocked(t) })
}

func (j *Journal) IncrementTotalQueries() {
	j.add(func(s *Store) { s.metrics.TotalQueries++ })
}

func (j *Journal) RecordResponseTime(seconds float64) {
	j.add(func(s *Store) {
		s.metrics.ResponseTimes = appendBounded(s.metrics.ResponseTimes, seconds, s.cfg.MaxSamples)
	})
}

func (j *Journal) RecordVectorstoreScore(score float64) {
	j.add(func(s *Store) {
		s.metrics.VectorstoreScores = appendBounded(s.metrics.VectorstoreScores, score, s.cfg.MaxSamples)
	})
}

// Commit applies the pending writes if ctx is still live. It reports whether
// anything was applied. A journal commits at most once.
func (s *Store) Commit(ctx context.Context, j *Journal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.committed {
		return false, nil
	}
	j.committed = true

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range j.ops {
		op(s)
	}
	return len(j.ops) > 0, nil
}
