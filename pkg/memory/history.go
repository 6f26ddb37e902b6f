package memory

import (
	"errors"
	"time"
)

var ErrNoConversation = errors.New("memory: no conversation turn to attach feedback to")

// Turn is one answered question in the session's conversation history.
type Turn struct {
	Query        string    `json:"query"`
	Response     string    `json:"response"`
	ContextUsed  []string  `json:"context_used"`
	Timestamp    time.Time `json:"timestamp"`
	UserFeedback *float64  `json:"user_feedback,omitempty"`
}

// AppendConversation adds a turn and drops the oldest beyond HistoryMax.
func (s *Store) AppendConversation(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendConversationLocked(t)
}

func (s *Store) appendConversationLocked(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	t.ContextUsed = append([]string(nil), t.ContextUsed...)
	s.history = append(s.history, t)
	if over := len(s.history) - s.cfg.HistoryMax; over > 0 {
		s.history = append([]Turn(nil), s.history[over:]...)
	}
}

// ConversationContext returns up to the last n turns, oldest first.
func (s *Store) ConversationContext(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.history) == 0 {
		return nil
	}
	if n > len(s.history) {
		n = len(s.history)
	}
	return append([]Turn(nil), s.history[len(s.history)-n:]...)
}

// RecentQueries returns the query text of the last n turns.
func (s *Store) RecentQueries(n int) []string {
	turns := s.ConversationContext(n)
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Query)
	}
	return out
}

// ConversationLength is the number of retained turns.
func (s *Store) ConversationLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// RecordFeedback attaches a score in [0,1] to the latest turn.
func (s *Store) RecordFeedback(score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ErrNoConversation
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	s.history[len(s.history)-1].UserFeedback = &score
	s.metrics.UserSatisfaction = appendBounded(s.metrics.UserSatisfaction, score, s.cfg.MaxSamples)
	return nil
}

// AverageFeedback averages feedback over the retained turns that have one.
func (s *Store) AverageFeedback() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	var n int
	for _, t := range s.history {
		if t.UserFeedback != nil {
			sum += *t.UserFeedback
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// UpdatePreferences merges updates into the user preferences.
func (s *Store) UpdatePreferences(updates map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.preferences[k] = v
	}
}

func (s *Store) Preferences() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.preferences))
	for k, v := range s.preferences {
		out[k] = v
	}
	return out
}
