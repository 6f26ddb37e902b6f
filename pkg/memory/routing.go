package memory

import (
	"strings"
	"time"
	"unicode"
)

type QueryType string

const (
	QueryComparison    QueryType = "comparison"
	QueryFinancialData QueryType = "financial_data"
	QueryRiskAnalysis  QueryType = "risk_analysis"
	QueryTrendAnalysis QueryType = "trend_analysis"
	QueryTemporal      QueryType = "temporal"
	QueryGeneral       QueryType = "general"
)

// first match wins, in this order
var queryTypeKeywords = []struct {
	kind  QueryType
	words []string
}{
	{QueryComparison, []string{"compare", "vs", "versus", "against"}},
	{QueryFinancialData, []string{"revenue", "profit", "earnings", "financial"}},
	{QueryRiskAnalysis, []string{"risk", "challenge", "threat", "concern"}},
	{QueryTrendAnalysis, []string{"trend", "growth", "change", "over time"}},
	{QueryTemporal, []string{"current", "latest", "recent", "today"}},
}

// ClassifyQuery buckets a question into a coarse type. Keywords match
// anywhere in the lower-cased question, so "risks" and "financials" count.
func ClassifyQuery(query string) QueryType {
	q := strings.ToLower(query)
	for _, group := range queryTypeKeywords {
		for _, kw := range group.words {
			if strings.Contains(q, kw) {
				return group.kind
			}
		}
	}
	return QueryGeneral
}

// Tokenize splits lower-cased text into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type RoutingDecision struct {
	Route        string    `json:"route"`
	Quality      float64   `json:"quality"`
	ResponseTime float64   `json:"response_time"`
	Timestamp    time.Time `json:"timestamp"`
}

type RoutingPattern struct {
	RecentDecisions     []RoutingDecision `json:"recent_decisions"`
	AverageQuality      float64           `json:"average_quality"`
	AverageResponseTime float64           `json:"average_response_time"`
	PreferredRoute      string            `json:"preferred_route"`
}

// LearnRoutingPattern records an outcome for the query's type and recomputes
// the pattern from decisions inside the routing window.
func (s *Store) LearnRoutingPattern(query, route string, quality, responseTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnRoutingLocked(ClassifyQuery(query), route, quality, responseTime)
}

func (s *Store) learnRoutingLocked(kind QueryType, route string, quality, responseTime float64) {
	now := s.now()
	p, ok := s.routingPatterns[kind]
	if !ok {
		p = &RoutingPattern{}
		s.routingPatterns[kind] = p
	}
	p.RecentDecisions = append(p.RecentDecisions, RoutingDecision{
		Route:        route,
		Quality:      quality,
		ResponseTime: responseTime,
		Timestamp:    now,
	})

	recent := make([]RoutingDecision, 0, len(p.RecentDecisions))
	for _, d := range p.RecentDecisions {
		if now.Sub(d.Timestamp) < s.cfg.RoutingWindow {
			recent = append(recent, d)
		}
	}
	p.RecentDecisions = recent
	if len(recent) == 0 {
		return
	}

	type perf struct {
		quality, speed float64
		n              int
	}
	var order []string
	byRoute := make(map[string]*perf)
	var sumQ, sumT float64
	for _, d := range recent {
		sumQ += d.Quality
		sumT += d.ResponseTime
		rp, ok := byRoute[d.Route]
		if !ok {
			rp = &perf{}
			byRoute[d.Route] = rp
			order = append(order, d.Route)
		}
		rp.quality += d.Quality
		rp.speed += d.ResponseTime
		rp.n++
	}
	p.AverageQuality = sumQ / float64(len(recent))
	p.AverageResponseTime = sumT / float64(len(recent))

	best, bestScore := "", 0.0
	for _, route := range order {
		rp := byRoute[route]
		avgQ := rp.quality / float64(rp.n)
		avgT := rp.speed / float64(rp.n)
		combined := 0.7*avgQ + 0.3*(1/(avgT+0.1))
		if combined > bestScore {
			best, bestScore = route, combined
		}
	}
	p.PreferredRoute = best
}

// GetRoutingRecommendation returns the learned route for the query's type when
// the pattern's rolling quality clears the recommendation floor.
func (s *Store) GetRoutingRecommendation(query string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.routingPatterns[ClassifyQuery(query)]
	if !ok || p.PreferredRoute == "" || p.AverageQuality <= s.cfg.RecommendationFloor {
		return "", false
	}
	return p.PreferredRoute, true
}

// RoutingPatterns returns a copy of the learned patterns.
func (s *Store) RoutingPatterns() map[QueryType]RoutingPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[QueryType]RoutingPattern, len(s.routingPatterns))
	for k, p := range s.routingPatterns {
		cp := *p
		cp.RecentDecisions = append([]RoutingDecision(nil), p.RecentDecisions...)
		out[k] = cp
	}
	return out
}
