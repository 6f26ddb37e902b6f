package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"

	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	mu       sync.Mutex
	text     []port.Hit
	image    []port.Hit
	embedErr error
	err      error
	searches int
}

func (f *fakeRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(len(text)), 1, 0.5}, nil
}

func (f *fakeRetriever) Search(ctx context.Context, embedding []float32, c port.Collection, topK int) (port.SearchResult, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.err != nil {
		return port.SearchResult{}, f.err
	}
	hits := f.text
	if c == port.CollectionImage {
		hits = f.image
	}
	legacy := make([]port.LegacyResult, 0, len(hits))
	for _, h := range hits {
		legacy = append(legacy, port.LegacyResult{Content: h.Content, Metadata: h.Metadata, Score: h.Score})
	}
	return port.SearchResult{Legacy: legacy}, nil
}

// fakeJudge answers from its function fields; nil fields give a permissive
// default.
type fakeJudge struct {
	route          func(question string) (string, error)
	relevance      func(question, doc string) (bool, error)
	hallucination  func(docs []state.Document, generation string) (bool, error)
	answer         func(question, generation string) (bool, error)
	company        string
	crossReference *state.CrossReference
	rewrite        func(question string) (string, error)
	strategy       string

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeJudge) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeJudge) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeJudge) Route(ctx context.Context, question, contextSummary string) (string, error) {
	f.count("route")
	if f.route == nil {
		return state.RouteVectorstore, nil
	}
	return f.route(question)
}

func (f *fakeJudge) GradeRelevance(ctx context.Context, question, doc string) (bool, error) {
	f.count("relevance")
	if f.relevance == nil {
		return true, nil
	}
	return f.relevance(question, doc)
}

func (f *fakeJudge) GradeHallucination(ctx context.Context, docs []state.Document, generation string) (bool, error) {
	f.count("hallucination")
	if f.hallucination == nil {
		return true, nil
	}
	return f.hallucination(docs, generation)
}

func (f *fakeJudge) GradeAnswer(ctx context.Context, question, generation string) (bool, error) {
	f.count("answer")
	if f.answer == nil {
		return true, nil
	}
	return f.answer(question, generation)
}

func (f *fakeJudge) ExtractCompany(ctx context.Context, question string) (string, error) {
	f.count("company")
	return f.company, nil
}

func (f *fakeJudge) AnalyzeCrossReference(ctx context.Context, question string) (state.CrossReference, error) {
	f.count("cross_reference")
	if f.crossReference == nil {
		return state.CrossReference{}, nil
	}
	return *f.crossReference, nil
}

func (f *fakeJudge) RewriteQuestion(ctx context.Context, question string) (string, error) {
	f.count("rewrite")
	if f.rewrite == nil {
		return question + " (rephrased)", nil
	}
	return f.rewrite(question)
}

func (f *fakeJudge) ChooseSummaryStrategy(ctx context.Context, question string, sources []state.SourceType) (string, error) {
	f.count("strategy")
	if f.strategy == "" {
		return "", errors.New("no strategy")
	}
	return f.strategy, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	attempts int
	err      error
	block    bool
}

func (f *fakeGenerator) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return f.attempts
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, docs []state.Document) (string, error) {
	n := f.next()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("answer %d to %s from %d documents", n, question, len(docs)), nil
}

func (f *fakeGenerator) GenerateWithCitations(ctx context.Context, question string, sources map[state.SourceType][]state.Document, strategy string) (string, error) {
	n := f.next()
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("cited answer %d (%s)", n, strategy), nil
}

type fakeWeb struct {
	results []port.WebResult
	err     error
	queries []string
}

func (f *fakeWeb) Search(ctx context.Context, query string, k int) ([]port.WebResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

type harness struct {
	retriever *fakeRetriever
	judge     *fakeJudge
	generator *fakeGenerator
	web       *fakeWeb
	mem       *memory.Store
	now       time.Time
}

func newHarness() *harness {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &harness{
		retriever: &fakeRetriever{},
		judge:     &fakeJudge{},
		generator: &fakeGenerator{},
		web:       &fakeWeb{results: []port.WebResult{{Title: "t", URL: "https://news.example/a", Content: "web snippet"}}},
		mem:       memory.New(memory.DefaultConfig(), memory.WithClock(func() time.Time { return now })),
		now:       now,
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Retriever: h.retriever,
		Judge:     h.judge,
		Generator: h.generator,
		Web:       h.web,
		Memory:    h.mem,
		Now:       func() time.Time { return h.now },
	}
}

func (h *harness) build(t *testing.T) *Workflow {
	t.Helper()
	w, err := Build(h.deps())
	require.NoError(t, err)
	return w
}

func (h *harness) nodes() *nodes {
	d := h.deps()
	d.Settings = d.Settings.withDefaults()
	return &nodes{deps: d, log: logger.NewNopLogger(), mem: h.mem, cfg: d.Settings}
}

func textHits(n int, score float64) []port.Hit {
	hits := make([]port.Hit, n)
	for i := range hits {
		hits[i] = port.Hit{
			Content:  fmt.Sprintf("filing passage %d", i),
			Metadata: map[string]interface{}{"id": fmt.Sprintf("doc-%d", i), "source_file": "10k.pdf"},
			Score:    score,
		}
	}
	return hits
}

func docs(n int) []state.Document {
	out := make([]state.Document, n)
	for i := range out {
		out[i] = state.Document{
			Content:    fmt.Sprintf("document %d", i),
			Metadata:   map[string]interface{}{"id": fmt.Sprintf("d%d", i)},
			SourceType: state.SourceText,
		}
	}
	return out
}
