package memory

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion is bumped whenever the Snapshot layout changes incompatibly.
const SnapshotVersion = 1

var ErrSnapshotVersion = errors.New("memory: unsupported snapshot version")

// Snapshot is the serialisable form of a Store.
type Snapshot struct {
	Version         int                          `json:"version"`
	SavedAt         time.Time                    `json:"saved_at"`
	QueryCache      map[string]QueryEntry        `json:"query_cache"`
	DocumentCache   map[string]DocumentEntry     `json:"document_cache"`
	RoutingPatterns map[QueryType]RoutingPattern `json:"routing_patterns"`
	History         []Turn                       `json:"conversation_history"`
	Metrics         PerformanceMetrics           `json:"performance_metrics"`
	CacheStats      CacheStats                   `json:"cache_stats"`
	Preferences     map[string]interface{}       `json:"user_preferences"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:         SnapshotVersion,
		SavedAt:         s.now(),
		QueryCache:      make(map[string]QueryEntry, len(s.queryCache)),
		DocumentCache:   make(map[string]DocumentEntry, len(s.documentCache)),
		RoutingPatterns: make(map[QueryType]RoutingPattern, len(s.routingPatterns)),
		History:         append([]Turn(nil), s.history...),
		Metrics:         copyMetrics(s.metrics),
		CacheStats:      s.stats,
		Preferences:     make(map[string]interface{}, len(s.preferences)),
	}
	for k, e := range s.queryCache {
		snap.QueryCache[k] = *e
	}
	for k, e := range s.documentCache {
		snap.DocumentCache[k] = *e
	}
	for k, p := range s.routingPatterns {
		cp := *p
		cp.RecentDecisions = append([]RoutingDecision(nil), p.RecentDecisions...)
		snap.RoutingPatterns[k] = cp
	}
	for k, v := range s.preferences {
		snap.Preferences[k] = v
	}
	return snap
}

// Restore replaces the Store contents with snap. Expired cache entries are
// dropped on the way in.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	now := s.now()

	for k, e := range snap.QueryCache {
		if !s.valid(e.CreatedAt, now) {
			continue
		}
		entry := e
		s.queryCache[k] = &entry
		if e.Seq > s.seq {
			s.seq = e.Seq
		}
	}
	for k, e := range snap.DocumentCache {
		if !s.valid(e.CreatedAt, now) {
			continue
		}
		entry := e
		s.documentCache[k] = &entry
		if e.Seq > s.seq {
			s.seq = e.Seq
		}
	}
	for k, p := range snap.RoutingPatterns {
		pattern := p
		s.routingPatterns[k] = &pattern
	}
	s.history = append([]Turn(nil), snap.History...)
	if over := len(s.history) - s.cfg.HistoryMax; over > 0 {
		s.history = s.history[over:]
	}
	s.metrics = copyMetrics(snap.Metrics)
	s.stats = snap.CacheStats
	for k, v := range snap.Preferences {
		s.preferences[k] = v
	}
	return nil
}
