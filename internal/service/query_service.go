package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"filings-rag-be/internal/dto"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/pkg/metrics"
	"filings-rag-be/pkg/graph"
	"filings-rag-be/pkg/session"
)

const defaultCleanupDays = 30

type IQueryService interface {
	Ask(ctx context.Context, userID string, req *dto.AskRequest, opts ...graph.Option) (*dto.AskResponse, error)
	ListSessions(ctx context.Context, userID string) (*dto.ListSessionsResponse, error)
	Summary(ctx context.Context, userID, sessionID string) (*session.Summary, error)
	Reset(ctx context.Context, userID, sessionID string) error
	Feedback(ctx context.Context, userID, sessionID string, req *dto.FeedbackRequest) error
	UpdatePreferences(ctx context.Context, userID, sessionID string, req *dto.PreferencesRequest) (*dto.PreferencesResponse, error)
	Cleanup(ctx context.Context, req *dto.CleanupRequest) (*session.CleanupReport, error)
}

type queryService struct {
	registry *session.Registry
	metrics  *metrics.Metrics
	logger   logger.ILogger
}

func NewQueryService(registry *session.Registry, m *metrics.Metrics, log logger.ILogger) IQueryService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &queryService{registry: registry, metrics: m, logger: log}
}

// Ask answers one question. userID is the authenticated user, if any: it wins
// over the body's user_id and restricts the request to that user's sessions.
// A request with neither a user nor a session gets an anonymous user so its
// session id can be reused by the client.
func (s *queryService) Ask(ctx context.Context, userID string, req *dto.AskRequest, opts ...graph.Option) (*dto.AskResponse, error) {
	caller := userID
	if userID == "" {
		userID = strings.TrimSpace(req.UserID)
	}
	if userID == "" && req.SessionID == "" {
		userID = "anon-" + uuid.NewString()
	}

	if s.metrics != nil {
		opts = append(opts, graph.WithObserver(s.metrics.NodeObserver()))
	}

	started := time.Now()
	res, err := s.registry.Invoke(ctx, session.InvokeRequest{
		Question:  req.Question,
		SessionID: req.SessionID,
		UserID:    userID,
		Caller:    caller,
		Extra:     req.Extra,
	}, opts...)
	if s.metrics != nil {
		s.metrics.ObserveInvocation(res.RoutingDecision, err, time.Since(started))
	}
	if err != nil {
		s.logger.Warn("query", "invocation failed", map[string]interface{}{
			"session_id": req.SessionID,
			"user_id":    userID,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.logger.Info("query", "question answered", map[string]interface{}{
		"session_id": res.SessionInfo.SessionID,
		"route":      res.RoutingDecision,
		"documents":  len(res.DocumentsUsed),
		"retries":    res.RetryCount,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	return &res, nil
}

func (s *queryService) ListSessions(ctx context.Context, userID string) (*dto.ListSessionsResponse, error) {
	list, err := s.registry.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.ListSessionsResponse{Sessions: list, Active: s.registry.ActiveCount()}, nil
}

func (s *queryService) Summary(ctx context.Context, userID, sessionID string) (*session.Summary, error) {
	sum, err := s.registry.Summary(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *queryService) Reset(ctx context.Context, userID, sessionID string) error {
	return s.registry.Reset(ctx, sessionID, userID)
}

func (s *queryService) Feedback(ctx context.Context, userID, sessionID string, req *dto.FeedbackRequest) error {
	return s.registry.Feedback(ctx, sessionID, userID, *req.Score)
}

func (s *queryService) UpdatePreferences(ctx context.Context, userID, sessionID string, req *dto.PreferencesRequest) (*dto.PreferencesResponse, error) {
	prefs, err := s.registry.UpdatePreferences(ctx, sessionID, userID, req.Preferences)
	if err != nil {
		return nil, err
	}
	return &dto.PreferencesResponse{SessionID: sessionID, Preferences: prefs}, nil
}

func (s *queryService) Cleanup(ctx context.Context, req *dto.CleanupRequest) (*session.CleanupReport, error) {
	days := req.Days
	if days <= 0 {
		days = defaultCleanupDays
	}
	report, err := s.registry.Cleanup(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
