// Package session maps session ids to isolated memories and compiled
// workflows, serialises executions per session and persists session memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/events"
	"filings-rag-be/pkg/graph"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/state"
	"filings-rag-be/pkg/rag/workflow"
)

const module = "session"

var (
	ErrEmptyQuestion   = errors.New("session: question is empty")
	ErrInvalidFeedback = errors.New("session: feedback score must be between 0 and 1")
)

// Builder compiles a workflow bound to one session's store.
type Builder func(store *memory.Store) (*workflow.Workflow, error)

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Config struct {
	Memory         memory.Config
	AutosaveEvery  int
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	SaveTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Memory:         memory.DefaultConfig(),
		AutosaveEvery:  3,
		IdleTimeout:    time.Hour,
		RequestTimeout: 90 * time.Second,
		SaveTimeout:    10 * time.Second,
	}
}

type Option func(*Registry)

func WithPersister(p Persister) Option {
	return func(r *Registry) {
		if p != nil {
			r.persister = p
		}
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(r *Registry) { r.events = p }
}

func WithLogger(l logger.ILogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry owns every live session. Each session gets its own memory.Store and
// workflow; nothing mutable is shared between sessions.
type Registry struct {
	cfg       Config
	build     Builder
	persister Persister
	events    EventPublisher
	log       logger.ILogger
	now       func() time.Time

	active *cache.Cache
	group  singleflight.Group
}

func NewRegistry(cfg Config, build Builder, opts ...Option) (*Registry, error) {
	if build == nil {
		return nil, errors.New("session: workflow builder is required")
	}
	d := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = d.SaveTimeout
	}
	r := &Registry{
		cfg:       cfg,
		build:     build,
		persister: NopPersister{},
		log:       logger.NewNopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.active = cache.New(cfg.IdleTimeout, cfg.IdleTimeout/2)
	r.active.OnEvicted(func(id string, v interface{}) {
		s, ok := v.(*Session)
		if !ok || s.dropped() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SaveTimeout)
		defer cancel()
		r.save(ctx, s, "idle eviction")
	})
	return r, nil
}

// Session is one live session.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	store *memory.Store
	wf    *workflow.Workflow

	run sync.Mutex

	mu         sync.Mutex
	lastActive time.Time
	completed  int
	gone       bool
}

func (s *Session) touch(at time.Time, completed bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = at
	if completed {
		s.completed++
	}
	return s.completed
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gone
}

func (s *Session) info() Info {
	return Info{
		SessionID:          s.ID,
		UserID:             s.UserID,
		CreatedAt:          s.CreatedAt,
		LastActive:         s.LastActive(),
		ConversationLength: s.store.ConversationLength(),
		Active:             true,
	}
}

func (s *Session) record() Record {
	return Record{
		SessionID:  s.ID,
		UserID:     s.UserID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		Snapshot:   s.store.Snapshot(),
	}
}

// Memory exposes the session's store.
func (s *Session) Memory() *memory.Store {
	return s.store
}

// Session returns the live session for id, creating it (or restoring it from
// the persister) when needed.
func (r *Registry) Session(ctx context.Context, id, userID string) (*Session, error) {
	return r.acquire(ctx, id, userID, "", false)
}

// acquire returns the live session for id. With mustExist, a session that is
// neither live nor persisted yields ErrSessionNotFound instead of being created.
//
// A non-empty caller is an authenticated identity. It only reaches sessions it
// owns and only creates new ones inside its own namespace; anything else looks
// like a missing session.
func (r *Registry) acquire(ctx context.Context, id, userID, caller string, mustExist bool) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if caller != "" {
		userID = caller
	}
	if v, ok := r.active.Get(id); ok {
		return r.owned(v.(*Session), caller)
	}

	key := id + "\x00" + caller
	if mustExist {
		key = "existing:" + key
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if v, ok := r.active.Get(id); ok {
			return v, nil
		}

		store := memory.New(r.cfg.Memory, memory.WithClock(r.now))
		created := r.now()
		lastActive := created
		restored := false

		rec, err := r.persister.Load(ctx, id)
		switch {
		case err == nil:
			if rerr := store.Restore(rec.Snapshot); rerr != nil {
				r.log.Warn(module, "discarding unreadable session snapshot", map[string]interface{}{"session_id": id, "error": rerr.Error()})
			} else {
				restored = true
				created = rec.CreatedAt
				lastActive = rec.LastActive
				if rec.UserID != "" {
					userID = rec.UserID
				}
			}
		case errors.Is(err, ErrSessionNotFound):
		default:
			r.log.Warn(module, "session load failed, starting empty", map[string]interface{}{"session_id": id, "error": err.Error()})
		}
		if !restored && (mustExist || (caller != "" && !inNamespace(caller, id))) {
			return nil, ErrSessionNotFound
		}
		if caller != "" && userID != caller {
			return nil, ErrSessionNotFound
		}

		wf, err := r.build(store)
		if err != nil {
			return nil, fmt.Errorf("build workflow for session %s: %w", id, err)
		}
		if userID == "" {
			userID = DefaultUser
		}
		s := &Session{
			ID:         id,
			UserID:     userID,
			CreatedAt:  created,
			store:      store,
			wf:         wf,
			lastActive: lastActive,
		}
		if err := r.active.Add(id, s, cache.DefaultExpiration); err != nil {
			if v, ok := r.active.Get(id); ok {
				return v, nil
			}
			r.active.Set(id, s, cache.DefaultExpiration)
		}
		r.log.Info(module, "session opened", map[string]interface{}{"session_id": id, "user_id": userID, "restored": restored})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return r.owned(v.(*Session), caller)
}

func (r *Registry) owned(s *Session, caller string) (*Session, error) {
	if caller != "" && s.UserID != caller {
		r.log.Warn(module, "session access denied", map[string]interface{}{"session_id": s.ID, "caller": caller})
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Result is what a caller gets back from one invocation.
type Result struct {
	Answer          string           `json:"answer"`
	DocumentsUsed   []state.Document `json:"documents_used"`
	RoutingDecision string           `json:"routing_decision"`
	Citations       []state.Citation `json:"citations"`
	ToolCalls       []state.ToolCall `json:"tool_calls"`
	RetryCount      int              `json:"retry_count"`
	SummaryStrategy string           `json:"summary_strategy,omitempty"`
	SessionInfo     Info             `json:"session_info"`
}

// InvokeRequest carries one question. An empty SessionID is derived from the
// user id and the current day. Caller, when set, is the authenticated user and
// takes the place of UserID.
type InvokeRequest struct {
	Question  string
	SessionID string
	UserID    string
	Caller    string
	Extra     map[string]interface{}
}

// Invoke runs the workflow for one question. Executions of the same session
// run one at a time; different sessions run concurrently.
func (r *Registry) Invoke(ctx context.Context, req InvokeRequest, opts ...graph.Option) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, ErrEmptyQuestion
	}
	user := req.UserID
	if req.Caller != "" {
		user = req.Caller
	}
	id := req.SessionID
	if id == "" {
		id = DeriveSessionID(user, r.now())
	}

	s, err := r.acquire(ctx, id, user, req.Caller, false)
	if err != nil {
		return Result{}, err
	}

	s.run.Lock()
	defer s.run.Unlock()

	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	started := r.now()
	s.touch(started, false)
	r.active.Set(id, s, cache.DefaultExpiration)

	initial := state.New(question, state.SessionMetadata{SessionID: s.ID, UserID: s.UserID, StartTime: started}, req.Extra)
	final, err := s.wf.Run(ctx, initial, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("session %s: %w", id, err)
	}

	completed := s.touch(r.now(), true)
	r.active.Set(id, s, cache.DefaultExpiration)

	if every := r.cfg.AutosaveEvery; every > 0 && completed%every == 0 {
		r.save(ctx, s, "autosave")
	}

	res := Result{
		Answer:          final.Answer,
		DocumentsUsed:   final.Documents,
		Citations:       final.CitationInfo,
		ToolCalls:       final.ToolCalls,
		RetryCount:      final.RetryCount,
		SummaryStrategy: final.SummaryStrategy,
		SessionInfo:     s.info(),
	}
	if final.RoutingMemory != nil {
		res.RoutingDecision = final.RoutingMemory.Decision
	}

	r.publish(ctx, events.QueryCompleted(uuid.NewString(), id, res.RoutingDecision, len(res.DocumentsUsed), res.RetryCount, r.now().Sub(started), r.now()))
	return res, nil
}

// save writes the session fail-soft.
func (r *Registry) save(ctx context.Context, s *Session, reason string) {
	if err := r.persister.Save(ctx, s.record()); err != nil {
		r.log.Warn(module, "session save failed", map[string]interface{}{"session_id": s.ID, "reason": reason, "error": err.Error()})
		return
	}
	r.log.Debug(module, "session saved", map[string]interface{}{"session_id": s.ID, "reason": reason})
}

func (r *Registry) publish(ctx context.Context, ev events.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, ev); err != nil {
		r.log.Warn(module, "event publish failed", map[string]interface{}{"type": ev.EventType(), "error": err.Error()})
	}
}

// Save persists one live session and reports the error to the caller.
func (r *Registry) Save(ctx context.Context, id string) error {
	v, ok := r.active.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return r.persister.Save(ctx, v.(*Session).record())
}

// Flush persists every live session, fail-soft, and returns how many were saved.
func (r *Registry) Flush(ctx context.Context) int {
	saved := 0
	for _, item := range r.active.Items() {
		s, ok := item.Object.(*Session)
		if !ok {
			continue
		}
		if err := r.persister.Save(ctx, s.record()); err != nil {
			r.log.Warn(module, "session flush failed", map[string]interface{}{"session_id": s.ID, "error": err.Error()})
			continue
		}
		saved++
	}
	return saved
}

// Reset clears a session's memory and its persisted record. The session stays
// live with an empty memory. Session operations take the authenticated caller,
// or "" for trusted local use.
func (r *Registry) Reset(ctx context.Context, id, caller string) error {
	s, err := r.acquire(ctx, id, "", caller, true)
	if err != nil {
		return err
	}
	s.run.Lock()
	defer s.run.Unlock()

	s.store.Clear()
	if err := r.persister.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		r.log.Warn(module, "deleting persisted session failed", map[string]interface{}{"session_id": id, "error": err.Error()})
	}
	s.touch(r.now(), false)
	r.publish(ctx, events.SessionReset(uuid.NewString(), id, r.now()))
	r.log.Info(module, "session reset", map[string]interface{}{"session_id": id})
	return nil
}

// Summary describes a live or persisted session.
type Summary struct {
	Info
	CacheSize       int                    `json:"cache_size"`
	LearnedPatterns int                    `json:"learned_patterns"`
	Preferences     map[string]interface{} `json:"user_preferences"`
	Insights        memory.Insights        `json:"performance_insights"`
}

func (r *Registry) Summary(ctx context.Context, id, caller string) (Summary, error) {
	s, err := r.acquire(ctx, id, "", caller, true)
	if err != nil {
		return Summary{}, err
	}
	insights := s.store.PerformanceInsights()
	return Summary{
		Info:            s.info(),
		CacheSize:       insights.CacheSize,
		LearnedPatterns: insights.RoutingPatternsLearned,
		Preferences:     s.store.Preferences(),
		Insights:        insights,
	}, nil
}

// Feedback attaches a satisfaction score in [0,1] to the latest turn.
func (r *Registry) Feedback(ctx context.Context, id, caller string, score float64) error {
	if score < 0 || score > 1 {
		return ErrInvalidFeedback
	}
	s, err := r.acquire(ctx, id, "", caller, true)
	if err != nil {
		return err
	}
	return s.store.RecordFeedback(score)
}

// UpdatePreferences merges updates and returns the resulting preferences.
func (r *Registry) UpdatePreferences(ctx context.Context, id, caller string, updates map[string]interface{}) (map[string]interface{}, error) {
	s, err := r.acquire(ctx, id, "", caller, true)
	if err != nil {
		return nil, err
	}
	s.store.UpdatePreferences(updates)
	return s.store.Preferences(), nil
}

// List merges live and persisted sessions, live entries winning, most recently
// active first.
func (r *Registry) List(ctx context.Context, userID string) ([]Info, error) {
	byID := map[string]Info{}

	persisted, err := r.persister.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list persisted sessions: %w", err)
	}
	for _, in := range persisted {
		byID[in.SessionID] = in
	}
	for _, item := range r.active.Items() {
		s, ok := item.Object.(*Session)
		if !ok || (userID != "" && s.UserID != userID) {
			continue
		}
		byID[s.ID] = s.info()
	}

	out := make([]Info, 0, len(byID))
	for _, in := range byID {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

type CleanupReport struct {
	PersistedRemoved int `json:"persisted_removed"`
	IdleClosed       int `json:"idle_closed"`
}

// Cleanup deletes persisted sessions inactive for maxAge and closes live
// sessions idle longer than the idle timeout, saving them first.
func (r *Registry) Cleanup(ctx context.Context, maxAge time.Duration) (CleanupReport, error) {
	var report CleanupReport
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	now := r.now()
	for id, item := range r.active.Items() {
		s, ok := item.Object.(*Session)
		if !ok || now.Sub(s.LastActive()) < r.cfg.IdleTimeout {
			continue
		}
		r.save(ctx, s, "cleanup")
		s.mu.Lock()
		s.gone = true
		s.mu.Unlock()
		r.active.Delete(id)
		report.IdleClosed++
	}

	n, err := r.persister.DeleteOlderThan(ctx, now.Add(-maxAge))
	report.PersistedRemoved = n
	if err != nil {
		return report, fmt.Errorf("cleanup persisted sessions: %w", err)
	}
	r.log.Info(module, "session cleanup", map[string]interface{}{"persisted_removed": n, "idle_closed": report.IdleClosed})
	return report, nil
}

// ActiveCount is the number of live sessions.
func (r *Registry) ActiveCount() int {
	return r.active.ItemCount()
}
