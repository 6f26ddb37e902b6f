// Package ragtest provides canned collaborators for exercising the workflow
// and the layers above it without model or database access.
package ragtest

import (
	"context"
	"fmt"

	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
	"filings-rag-be/pkg/rag/workflow"
)

// Retriever returns two relevant text chunks and no image captions.
type Retriever struct{}

func (Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (Retriever) Search(ctx context.Context, emb []float32, c port.Collection, topK int) (port.SearchResult, error) {
	if c == port.CollectionImage {
		return port.SearchResult{Legacy: []port.LegacyResult{}}, nil
	}
	return port.SearchResult{Legacy: []port.LegacyResult{
		{Content: "Revenue grew 12%", Metadata: map[string]interface{}{"id": "c1", "source_file": "10k.pdf"}, Score: 0.82},
		{Content: "Operating margin 9%", Metadata: map[string]interface{}{"id": "c2", "source_file": "10k.pdf"}, Score: 0.71},
	}}, nil
}

// Judge approves everything.
type Judge struct{}

func (Judge) Route(context.Context, string, string) (string, error) {
	return state.RouteVectorstore, nil
}
func (Judge) GradeRelevance(context.Context, string, string) (bool, error) { return true, nil }
func (Judge) GradeHallucination(context.Context, []state.Document, string) (bool, error) {
	return true, nil
}
func (Judge) GradeAnswer(context.Context, string, string) (bool, error) { return true, nil }
func (Judge) ExtractCompany(context.Context, string) (string, error) { return "", nil }
func (Judge) AnalyzeCrossReference(context.Context, string) (state.CrossReference, error) {
	return state.CrossReference{}, nil
}
func (Judge) RewriteQuestion(_ context.Context, q string) (string, error) { return q, nil }
func (Judge) ChooseSummaryStrategy(context.Context, string, []state.SourceType) (string, error) {
	return state.StrategySingleSource, nil
}

// Generator echoes the question. With Block set it waits for cancellation.
type Generator struct{ Block bool }

func (g Generator) Generate(ctx context.Context, question string, docs []state.Document) (string, error) {
	if g.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return fmt.Sprintf("answer to %s", question), nil
}

func (g Generator) GenerateWithCitations(ctx context.Context, question string, _ map[state.SourceType][]state.Document, _ string) (string, error) {
	return g.Generate(ctx, question, nil)
}

type Web struct{}

func (Web) Search(context.Context, string, int) ([]port.WebResult, error) {
	return []port.WebResult{{Title: "news", URL: "https://example.com", Content: "web"}}, nil
}

// Deps returns workflow dependencies built from the stubs above.
func Deps(store *memory.Store, gen Generator) workflow.Deps {
	return workflow.Deps{
		Retriever: Retriever{},
		Judge:     Judge{},
		Generator: gen,
		Web:       Web{},
		Memory:    store,
	}
}
