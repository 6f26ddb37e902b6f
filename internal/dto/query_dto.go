package dto

import (
	"filings-rag-be/pkg/session"
)

type AskRequest struct {
	Question  string                 `json:"question" validate:"required,max=4000"`
	SessionID string                 `json:"session_id" validate:"omitempty,max=128"`
	UserID    string                 `json:"user_id" validate:"omitempty,max=100"`
	Extra     map[string]interface{} `json:"extra"`
}

type AskResponse = session.Result

type FeedbackRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0,lte=1"`
}

type PreferencesRequest struct {
	Preferences map[string]interface{} `json:"preferences" validate:"required,min=1"`
}

type PreferencesResponse struct {
	SessionID   string                 `json:"session_id"`
	Preferences map[string]interface{} `json:"user_preferences"`
}

type CleanupRequest struct {
	Days int `json:"days" validate:"omitempty,gte=1,lte=3650"`
}

type ListSessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Active   int            `json:"active"`
}
