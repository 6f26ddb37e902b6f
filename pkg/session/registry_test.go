package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filings-rag-be/pkg/events"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/state"
)

func TestDeriveSessionID(t *testing.T) {
	day := time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)
	tests := []struct {
		name   string
		user   string
		prefix string
	}{
		{"plain user", "alice", "alice-"},
		{"empty user", "", "default-"},
		{"unsafe characters", "a/b c", "a-b-c-"},
		{"email", "bob@example.com", "bob-example.com-"},
		{"only unsafe characters", "@@@", "user-"},
		{"long user", strings.Repeat("x", 200), strings.Repeat("x", 48) + "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSessionID(tt.user, day)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.True(t, strings.HasSuffix(got, "_20250314"), got)
			assert.True(t, ValidID(got), got)
			assert.Equal(t, got, DeriveSessionID(tt.user, day.Add(-time.Hour)))
		})
	}

	assert.NotEqual(t, DeriveSessionID("alice", day), DeriveSessionID("alice", day.Add(time.Minute)))
	assert.Equal(t, DeriveSessionID("", day), DeriveSessionID(DefaultUser, day))
	assert.False(t, ValidID("../etc"))
	assert.False(t, ValidID(""))
}

func TestDeriveSessionIDKeepsUsersApart(t *testing.T) {
	day := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("x", 100)
	pairs := [][2]string{
		{"alice_smith", "alice-smith"},
		{"bob@corp.com", "bob#corp.com"},
		{"a/b", "a b"},
		{long + "1", long + "2"},
		{strings.Repeat("y", 48) + "-a", strings.Repeat("y", 48) + "-b"},
	}
	for _, p := range pairs {
		a, b := DeriveSessionID(p[0], day), DeriveSessionID(p[1], day)
		assert.NotEqual(t, a, b, "users %q and %q", p[0], p[1])
		assert.True(t, inNamespace(p[0], a))
		assert.False(t, inNamespace(p[0], b))
	}
}

func TestInvokeDerivesSessionAndAnswers(t *testing.T) {
	pub := &recordingPublisher{}
	r, clk := newRegistry(t, DefaultConfig(), stubGenerator{}, WithEventPublisher(pub))

	res, err := r.Invoke(context.Background(), InvokeRequest{Question: "What was Apple's revenue?", UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "answer to What was Apple's revenue?", res.Answer)
	assert.Equal(t, state.RouteVectorstore, res.RoutingDecision)
	assert.Len(t, res.DocumentsUsed, 2)
	assert.NotEmpty(t, res.ToolCalls)
	assert.Equal(t, DeriveSessionID("alice", clk.Now()), res.SessionInfo.SessionID)
	assert.Equal(t, "alice", res.SessionInfo.UserID)
	assert.Equal(t, 1, res.SessionInfo.ConversationLength)
	assert.True(t, res.SessionInfo.Active)
	assert.Equal(t, []string{events.TypeQueryCompleted}, pub.Types())
}

func TestInvokeRejectsEmptyQuestion(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	_, err := r.Invoke(context.Background(), InvokeRequest{Question: "  ", UserID: "alice"})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, r.ActiveCount())
}

func TestInvokeRejectsInvalidSessionID(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	_, err := r.Invoke(context.Background(), InvokeRequest{Question: "q", SessionID: "../x"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSessionsAreIsolated(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	ctx := context.Background()

	_, err := r.Invoke(ctx, InvokeRequest{Question: "Apple revenue", SessionID: "alice_1"})
	require.NoError(t, err)
	_, err = r.Invoke(ctx, InvokeRequest{Question: "Apple revenue", SessionID: "alice_1"})
	require.NoError(t, err)
	_, err = r.Invoke(ctx, InvokeRequest{Question: "Tesla margin", SessionID: "bob_1"})
	require.NoError(t, err)

	alice, err := r.Session(ctx, "alice_1", "")
	require.NoError(t, err)
	bob, err := r.Session(ctx, "bob_1", "")
	require.NoError(t, err)

	assert.NotSame(t, alice.Memory(), bob.Memory())
	assert.Equal(t, 2, alice.Memory().ConversationLength())
	assert.Equal(t, 1, bob.Memory().ConversationLength())
	assert.Equal(t, []string{"Tesla margin"}, bob.Memory().RecentQueries(5))
	assert.Equal(t, 2, r.ActiveCount())
}

func TestConcurrentSessionsKeepTheirOwnHistory(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	ctx := context.Background()

	const sessions, perSession = 4, 3
	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for i := 0; i < sessions; i++ {
		for j := 0; j < perSession; j++ {
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				_, err := r.Invoke(ctx, InvokeRequest{
					Question:  fmt.Sprintf("question %d from user %d", j, i),
					SessionID: fmt.Sprintf("user%d_1", i),
				})
				errs <- err
			}(i, j)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < sessions; i++ {
		s, err := r.Session(ctx, fmt.Sprintf("user%d_1", i), "")
		require.NoError(t, err)
		assert.Equal(t, perSession, s.Memory().ConversationLength())
		for _, q := range s.Memory().RecentQueries(perSession) {
			assert.Contains(t, q, fmt.Sprintf("from user %d", i))
		}
	}
}

func TestAutosaveEveryNQueries(t *testing.T) {
	dir := t.TempDir()
	fp, err := NewFilePersister(dir)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AutosaveEvery = 2
	r, _ := newRegistry(t, cfg, stubGenerator{}, WithPersister(fp))
	ctx := context.Background()

	_, err = r.Invoke(ctx, InvokeRequest{Question: "q1", SessionID: "alice_1", UserID: "alice"})
	require.NoError(t, err)
	_, err = fp.Load(ctx, "alice_1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = r.Invoke(ctx, InvokeRequest{Question: "q2", SessionID: "alice_1", UserID: "alice"})
	require.NoError(t, err)
	rec, err := fp.Load(ctx, "alice_1")
	require.NoError(t, err)
	assert.Len(t, rec.Snapshot.History, 2)
	assert.Equal(t, "alice", rec.UserID)
}

func TestAutosaveFailureIsNotFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutosaveEvery = 1
	r, _ := newRegistry(t, cfg, stubGenerator{}, WithPersister(failingPersister{}))

	res, err := r.Invoke(context.Background(), InvokeRequest{Question: "q", SessionID: "alice_1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Answer)
}

func TestPersistedSessionIsRestored(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, _ := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	_, err = first.Invoke(ctx, InvokeRequest{Question: "Apple revenue", SessionID: "alice_1", UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Flush(ctx))

	second, _ := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	sum, err := second.Summary(ctx, "alice_1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ConversationLength)
	assert.Equal(t, 1, sum.CacheSize)
	assert.Equal(t, 1, sum.LearnedPatterns)
	assert.Equal(t, "alice", sum.UserID)
}

func TestSummaryOfUnknownSession(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	_, err := r.Summary(context.Background(), "ghost_1", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.ActiveCount())
}

func TestResetClearsMemoryAndPersistedRecord(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	pub := &recordingPublisher{}
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp), WithEventPublisher(pub))
	ctx := context.Background()

	_, err = r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "alice_1"})
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, "alice_1"))

	require.NoError(t, r.Reset(ctx, "alice_1", ""))

	sum, err := r.Summary(ctx, "alice_1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ConversationLength)
	assert.Equal(t, 0, sum.CacheSize)
	_, err = fp.Load(ctx, "alice_1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, []string{events.TypeQueryCompleted, events.TypeSessionReset}, pub.Types())

	assert.ErrorIs(t, r.Reset(ctx, "ghost_1", ""), ErrSessionNotFound)
}

func TestFeedbackAndPreferences(t *testing.T) {
	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{})
	ctx := context.Background()

	_, err := r.Session(ctx, "alice_1", "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Feedback(ctx, "alice_1", "", 0.9), memory.ErrNoConversation)

	_, err = r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "alice_1"})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Feedback(ctx, "alice_1", "", 1.5), ErrInvalidFeedback)
	require.NoError(t, r.Feedback(ctx, "alice_1", "", 0.9))

	s, err := r.Session(ctx, "alice_1", "")
	require.NoError(t, err)
	avg, ok := s.Memory().AverageFeedback()
	require.True(t, ok)
	assert.InDelta(t, 0.9, avg, 1e-9)

	prefs, err := r.UpdatePreferences(ctx, "alice_1", "", map[string]interface{}{"detail_level": "high"})
	require.NoError(t, err)
	assert.Equal(t, "high", prefs["detail_level"])

	_, err = r.UpdatePreferences(ctx, "ghost_1", "", map[string]interface{}{"x": 1})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListMergesLiveAndPersisted(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	old := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fp.Save(ctx, Record{SessionID: "alice_0", UserID: "alice", CreatedAt: old, LastActive: old, Snapshot: memory.New(memory.DefaultConfig()).Snapshot()}))
	require.NoError(t, fp.Save(ctx, Record{SessionID: "bob_0", UserID: "bob", CreatedAt: old, LastActive: old, Snapshot: memory.New(memory.DefaultConfig()).Snapshot()}))

	r, _ := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	_, err = r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "alice_1", UserID: "alice"})
	require.NoError(t, err)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := r.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "alice_1", mine[0].SessionID)
	assert.True(t, mine[0].Active)
	assert.Equal(t, "alice_0", mine[1].SessionID)
	assert.False(t, mine[1].Active)
}

func TestCleanupClosesIdleAndRemovesOld(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	r, clk := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	_, err = r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "alice_1"})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	report, err := r.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IdleClosed)
	assert.Equal(t, 0, report.PersistedRemoved)
	assert.Equal(t, 0, r.ActiveCount())

	_, err = fp.Load(ctx, "alice_1")
	require.NoError(t, err, "idle sessions are saved before closing")

	clk.Advance(31 * 24 * time.Hour)
	report, err = r.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersistedRemoved)
}

func TestTimedOutInvocationLeavesMemoryUntouched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	r, _ := newRegistry(t, cfg, stubGenerator{block: true})
	ctx := context.Background()

	_, err := r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "alice_1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	s, err := r.Session(ctx, "alice_1", "")
	require.NoError(t, err)
	insights := s.Memory().PerformanceInsights()
	assert.Equal(t, 0, insights.ConversationLength)
	assert.Equal(t, 0, insights.CacheSize)
	assert.Equal(t, 0, insights.DocumentCacheSize)
	assert.Equal(t, 0, insights.TotalQueries)
}

func TestCallerOnlyReachesOwnSessions(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	r, clk := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	ctx := context.Background()

	res, err := r.Invoke(ctx, InvokeRequest{Question: "Apple revenue", Caller: "alice", UserID: "mallory"})
	require.NoError(t, err)
	aliceID := res.SessionInfo.SessionID
	assert.Equal(t, DeriveSessionID("alice", clk.Now()), aliceID)
	assert.Equal(t, "alice", res.SessionInfo.UserID)

	_, err = r.Invoke(ctx, InvokeRequest{Question: "Apple revenue", SessionID: aliceID, Caller: "mallory"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Summary(ctx, aliceID, "mallory")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Reset(ctx, aliceID, "mallory"), ErrSessionNotFound)
	assert.ErrorIs(t, r.Feedback(ctx, aliceID, "mallory", 0.1), ErrSessionNotFound)
	_, err = r.UpdatePreferences(ctx, aliceID, "mallory", map[string]interface{}{"x": 1})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sum, err := r.Summary(ctx, aliceID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ConversationLength)
	_, hasX := sum.Preferences["x"]
	assert.False(t, hasX)

	// Persisted ownership holds after the session left memory.
	require.NoError(t, r.Save(ctx, aliceID))
	restarted, _ := newRegistry(t, DefaultConfig(), stubGenerator{}, WithPersister(fp))
	_, err = restarted.Invoke(ctx, InvokeRequest{Question: "q", SessionID: aliceID, Caller: "mallory"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = restarted.Summary(ctx, aliceID, "alice")
	require.NoError(t, err)
}

func TestCallerCreatesSessionsOnlyInOwnNamespace(t *testing.T) {
	r, clk := newRegistry(t, DefaultConfig(), stubGenerator{})
	ctx := context.Background()

	tomorrow := DeriveSessionID("alice", clk.Now().Add(24*time.Hour))
	_, err := r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: tomorrow, Caller: "mallory"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.ActiveCount())

	res, err := r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: tomorrow, Caller: "alice"})
	require.NoError(t, err)
	assert.Equal(t, tomorrow, res.SessionInfo.SessionID)

	res, err = r.Invoke(ctx, InvokeRequest{Question: "q", SessionID: "scratch_1"})
	require.NoError(t, err)
	assert.Equal(t, DefaultUser, res.SessionInfo.UserID)
}
