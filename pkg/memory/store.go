// Package memory holds the per-session memory: query and document caches,
// learned routing patterns, conversation history and performance counters.
//
// A Store is owned by exactly one session. All methods are safe for
// concurrent use; compound read-modify-write operations run under one lock.
package memory

import (
	"sync"
	"time"
)

// Config tunes a Store. Zero fields fall back to DefaultConfig values.
type Config struct {
	CacheTTL            time.Duration
	MaxCacheSize        int
	HistoryMax          int
	RoutingWindow       time.Duration
	RecommendationFloor float64
	MaxSamples          int
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:            time.Hour,
		MaxCacheSize:        1000,
		HistoryMax:          10,
		RoutingWindow:       24 * time.Hour,
		RecommendationFloor: 0.6,
		MaxSamples:          1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.MaxCacheSize <= 0 {
		c.MaxCacheSize = d.MaxCacheSize
	}
	if c.HistoryMax <= 0 {
		c.HistoryMax = d.HistoryMax
	}
	if c.RoutingWindow <= 0 {
		c.RoutingWindow = d.RoutingWindow
	}
	if c.RecommendationFloor <= 0 {
		c.RecommendationFloor = d.RecommendationFloor
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = d.MaxSamples
	}
	return c
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	queryCache      map[string]*QueryEntry
	documentCache   map[string]*DocumentEntry
	routingPatterns map[QueryType]*RoutingPattern
	history         []Turn
	metrics         PerformanceMetrics
	stats           CacheStats
	preferences     map[string]interface{}
	seq             uint64
}

func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.queryCache = make(map[string]*QueryEntry)
	s.documentCache = make(map[string]*DocumentEntry)
	s.routingPatterns = make(map[QueryType]*RoutingPattern)
	s.history = nil
	s.metrics = PerformanceMetrics{}
	s.stats = CacheStats{}
	s.preferences = defaultPreferences()
}

// Clear drops every cache, pattern and counter.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) valid(created time.Time, now time.Time) bool {
	return now.Sub(created) < s.cfg.CacheTTL
}

func defaultPreferences() map[string]interface{} {
	return map[string]interface{}{
		"preferred_detail_level":     "medium",
		"favorite_companies":         []string{},
		"common_query_types":         []string{},
		"response_format_preference": "structured",
	}
}
