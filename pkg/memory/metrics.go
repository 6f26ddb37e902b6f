package memory

// PerformanceMetrics are session-level counters and bounded sample windows.
type PerformanceMetrics struct {
	ResponseTimes     []float64 `json:"response_times"`
	VectorstoreScores []float64 `json:"vectorstore_scores"`
	UserSatisfaction  []float64 `json:"user_satisfaction"`
	CacheHits         int       `json:"cache_hits"`
	TotalQueries      int       `json:"total_queries"`
}

type Insights struct {
	CacheHitRate            float64 `json:"cache_hit_rate"`
	AverageResponseTime     float64 `json:"average_response_time"`
	AverageVectorstoreScore float64 `json:"average_vectorstore_score"`
	CacheSize               int     `json:"cache_size"`
	DocumentCacheSize       int     `json:"document_cache_size"`
	RoutingPatternsLearned  int     `json:"routing_patterns_learned"`
	ConversationLength      int     `json:"conversation_length"`
	TotalQueries            int     `json:"total_queries"`
}

func (s *Store) IncrementTotalQueries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TotalQueries++
}

func (s *Store) RecordResponseTime(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ResponseTimes = appendBounded(s.metrics.ResponseTimes, seconds, s.cfg.MaxSamples)
}

func (s *Store) RecordVectorstoreScore(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.VectorstoreScores = appendBounded(s.metrics.VectorstoreScores, score, s.cfg.MaxSamples)
}

// Metrics returns a copy of the raw counters.
func (s *Store) Metrics() PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMetrics(s.metrics)
}

// PerformanceInsights summarises the session for reporting.
func (s *Store) PerformanceInsights() Insights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Insights{
		CacheHitRate:            s.stats.HitRate(),
		AverageResponseTime:     mean(s.metrics.ResponseTimes),
		AverageVectorstoreScore: mean(s.metrics.VectorstoreScores),
		CacheSize:               len(s.queryCache),
		DocumentCacheSize:       len(s.documentCache),
		RoutingPatternsLearned:  len(s.routingPatterns),
		ConversationLength:      len(s.history),
		TotalQueries:            s.metrics.TotalQueries,
	}
}

func appendBounded(samples []float64, v float64, max int) []float64 {
	samples = append(samples, v)
	if over := len(samples) - max; over > 0 {
		samples = append([]float64(nil), samples[over:]...)
	}
	return samples
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func copyMetrics(m PerformanceMetrics) PerformanceMetrics {
	m.ResponseTimes = append([]float64(nil), m.ResponseTimes...)
	m.VectorstoreScores = append([]float64(nil), m.VectorstoreScores...)
	m.UserSatisfaction = append([]float64(nil), m.UserSatisfaction...)
	return m
}
