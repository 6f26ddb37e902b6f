// Package port declares the capabilities the workflow consumes. Concrete
// adapters live in pkg/retrieval, pkg/websearch and pkg/rag/judge.
package port

import (
	"context"
	"errors"

	"filings-rag-be/pkg/rag/state"
)

// ErrUnparsable is returned by a Judge when the model answered but the answer
// could not be read as the requested judgment.
var ErrUnparsable = errors.New("port: unparsable judgment")

// Collection names a searchable vector collection.
type Collection string

const (
	CollectionText  Collection = "text"
	CollectionImage Collection = "image"
)

// Hit is one scored search result.
type Hit struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// Point is a hit in the shape returned by point-based vector stores.
type Point struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// LegacyResult is a hit in the older (document, score) pair shape.
type LegacyResult struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// SearchResult is exactly one of Points or Legacy. Adapters fill one arm;
// callers only ever consume Hits.
type SearchResult struct {
	Points []Point
	Legacy []LegacyResult
}

// Hits normalises either arm into a flat list. Point payloads carry the text
// under "page_content" or "content"; the rest of the payload becomes metadata.
func (r SearchResult) Hits() []Hit {
	if r.Points != nil {
		hits := make([]Hit, 0, len(r.Points))
		for _, p := range r.Points {
			meta := make(map[string]interface{}, len(p.Payload)+1)
			var content string
			for k, v := range p.Payload {
				switch k {
				case "page_content", "content":
					if s, ok := v.(string); ok {
						content = s
						continue
					}
				case "metadata":
					if m, ok := v.(map[string]interface{}); ok {
						for mk, mv := range m {
							meta[mk] = mv
						}
						continue
					}
				}
				meta[k] = v
			}
			if _, ok := meta["id"]; !ok && p.ID != "" {
				meta["id"] = p.ID
			}
			hits = append(hits, Hit{Content: content, Metadata: meta, Score: p.Score})
		}
		return hits
	}
	hits := make([]Hit, 0, len(r.Legacy))
	for _, l := range r.Legacy {
		hits = append(hits, Hit{Content: l.Content, Metadata: l.Metadata, Score: l.Score})
	}
	return hits
}

// Retriever embeds queries and searches vector collections.
type Retriever interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, embedding []float32, collection Collection, topK int) (SearchResult, error)
}

// Judge wraps the structured LLM judgments used by the workflow.
type Judge interface {
	Route(ctx context.Context, question, contextSummary string) (string, error)
	GradeRelevance(ctx context.Context, question, document string) (bool, error)
	GradeHallucination(ctx context.Context, documents []state.Document, generation string) (bool, error)
	GradeAnswer(ctx context.Context, question, generation string) (bool, error)
	ExtractCompany(ctx context.Context, question string) (string, error)
	AnalyzeCrossReference(ctx context.Context, question string) (state.CrossReference, error)
	RewriteQuestion(ctx context.Context, question string) (string, error)
	ChooseSummaryStrategy(ctx context.Context, question string, sources []state.SourceType) (string, error)
}

// Generator produces answers.
type Generator interface {
	Generate(ctx context.Context, question string, documents []state.Document) (string, error)
	GenerateWithCitations(ctx context.Context, question string, sources map[state.SourceType][]state.Document, strategy string) (string, error)
}

// WebResult is one raw snippet from a search engine.
type WebResult struct {
	Title   string
	URL     string
	Content string
}

type WebSearcher interface {
	Search(ctx context.Context, query string, k int) ([]WebResult, error)
}

// ToDocument converts a hit into a workflow document tagged with source.
func (h Hit) ToDocument(source state.SourceType) state.Document {
	meta := make(map[string]interface{}, len(h.Metadata))
	for k, v := range h.Metadata {
		meta[k] = v
	}
	return state.Document{Content: h.Content, Metadata: meta, SourceType: source, Score: h.Score}
}
