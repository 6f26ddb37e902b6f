package state

import "time"

// SourceType tags where a document came from.
type SourceType string

const (
	SourceText         SourceType = "text"
	SourceImage        SourceType = "image"
	SourceWeb          SourceType = "web"
	SourceFinancialWeb SourceType = "financial_web"
)

// ImageContentPrefix marks documents produced from image captions at ingestion time.
const ImageContentPrefix = "[IMAGE]"

// Route values produced by the router.
const (
	RouteVectorstore   = "vectorstore"
	RouteWebSearch     = "web_search"
	RouteWebSupplement = "vectorstore_with_web_supplement"
)

// Summary strategies chosen before citation-aware generation.
const (
	StrategySingleSource     = "single_source"
	StrategyMultiVectorstore = "multi_source_vectorstore"
	StrategyIntegratedWeb    = "integrated_web_vectorstore"
)

// Document is a unit of evidence threaded through the workflow.
type Document struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	SourceType SourceType             `json:"source_type,omitempty"`
	Score      float64                `json:"score,omitempty"`
}

// ID returns the metadata id when present.
func (d Document) ID() string {
	if d.Metadata == nil {
		return ""
	}
	if v, ok := d.Metadata["id"].(string); ok {
		return v
	}
	return ""
}

// SourceFile returns the file the document was extracted from, or "unknown".
func (d Document) SourceFile() string {
	if d.Metadata != nil {
		if v, ok := d.Metadata["source_file"].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}

const (
	RoleUser      = "user"
	RoleRewritten = "rewritten"
)

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ToolCall struct {
	Tool string `json:"tool"`
}

type CrossReference struct {
	NeedsCrossReference bool     `json:"needs_cross_reference"`
	SourceTypesNeeded   []string `json:"source_types_needed"`
	Reasoning           string   `json:"reasoning"`
}

type Citation struct {
	SourceType     SourceType `json:"source_type"`
	DocumentID     string     `json:"document_id"`
	RelevanceScore float64    `json:"relevance_score"`
	Excerpt        string     `json:"excerpt"`
}

type RouteScores struct {
	Text    float64 `json:"text"`
	Image   float64 `json:"image"`
	Overall float64 `json:"overall"`
}

type RoutingMemory struct {
	Decision            string      `json:"decision"`
	Scores              RouteScores `json:"scores"`
	Confidence          int         `json:"confidence"`
	ResponseTimeSeconds float64     `json:"response_time_seconds"`
	TemporalQuery       bool        `json:"temporal_query"`
	FromRecommendation  bool        `json:"from_recommendation"`
}

type SessionMetadata struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
}

// Generation grades.
const (
	GradeUseful       = "useful"
	GradeNotUseful    = "not useful"
	GradeNotSupported = "not supported"
)

// GraphState is the record threaded through one workflow execution.
// Nodes read it and return an Update; only Merge writes it.
type GraphState struct {
	Conversation           []Message                 `json:"conversation"`
	Documents              []Document                `json:"documents"`
	RetryCount             int                       `json:"retry_count"`
	ToolCalls              []ToolCall                `json:"tool_calls"`
	VectorstoreSearched    bool                      `json:"vectorstore_searched"`
	WebSearched            bool                      `json:"web_searched"`
	CrossReferenceAnalysis *CrossReference           `json:"cross_reference_analysis,omitempty"`
	DocumentSources        map[SourceType][]Document `json:"document_sources,omitempty"`
	CitationInfo           []Citation                `json:"citation_info,omitempty"`
	RoutingMemory          *RoutingMemory            `json:"routing_memory,omitempty"`
	SessionMetadata        SessionMetadata           `json:"session_metadata"`
	SummaryStrategy        string                    `json:"summary_strategy,omitempty"`
	Generation             string                    `json:"generation,omitempty"`
	GenerationGrade        string                    `json:"generation_grade,omitempty"`
	Answer                 string                    `json:"answer,omitempty"`
	Extra                  map[string]interface{}    `json:"extra,omitempty"`
}

// Question returns the active question, the text of the last conversation entry.
func (s GraphState) Question() string {
	if len(s.Conversation) == 0 {
		return ""
	}
	return s.Conversation[len(s.Conversation)-1].Text
}

// OriginalQuestion returns the question the execution started with, before any
// rewrite.
func (s GraphState) OriginalQuestion() string {
	for _, m := range s.Conversation {
		if m.Role == RoleUser {
			return m.Text
		}
	}
	return s.Question()
}

// CrossReferenceActive reports whether upstream analysis asked for multi-entity evidence.
func (s GraphState) CrossReferenceActive() bool {
	return s.CrossReferenceAnalysis != nil && s.CrossReferenceAnalysis.NeedsCrossReference
}

// New builds the initial state for a question.
func New(question string, meta SessionMetadata, extra map[string]interface{}) GraphState {
	return GraphState{
		Conversation:    []Message{{Role: RoleUser, Text: question}},
		SessionMetadata: meta,
		Extra:           extra,
	}
}
