package dto

import "filings-rag-be/pkg/session"

// Stream frame types.
const (
	FrameNode   = "node"
	FrameResult = "result"
	FrameError  = "error"
)

// StreamFrame is one server message on the query stream.
type StreamFrame struct {
	Type       string          `json:"type"`
	Node       string          `json:"node,omitempty"`
	Step       int             `json:"step,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	Result     *session.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}
