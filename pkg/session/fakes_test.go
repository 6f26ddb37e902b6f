package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filings-rag-be/pkg/events"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
	"filings-rag-be/pkg/rag/workflow"
)

type stubRetriever struct{}

func (stubRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (stubRetriever) Search(ctx context.Context, emb []float32, c port.Collection, topK int) (port.SearchResult, error) {
	if c == port.CollectionImage {
		return port.SearchResult{Legacy: []port.LegacyResult{}}, nil
	}
	return port.SearchResult{Legacy: []port.LegacyResult{
		{Content: "Revenue grew 12%", Metadata: map[string]interface{}{"id": "c1", "source_file": "10k.pdf"}, Score: 0.82},
		{Content: "Operating margin 9%", Metadata: map[string]interface{}{"id": "c2", "source_file": "10k.pdf"}, Score: 0.71},
	}}, nil
}

type stubJudge struct{}

func (stubJudge) Route(context.Context, string, string) (string, error) {
	return state.RouteVectorstore, nil
}
func (stubJudge) GradeRelevance(context.Context, string, string) (bool, error) { return true, nil }
func (stubJudge) GradeHallucination(context.Context, []state.Document, string) (bool, error) {
	return true, nil
}
func (stubJudge) GradeAnswer(context.Context, string, string) (bool, error) { return true, nil }
func (stubJudge) ExtractCompany(context.Context, string) (string, error) { return "", nil }
func (stubJudge) AnalyzeCrossReference(context.Context, string) (state.CrossReference, error) {
	return state.CrossReference{}, nil
}
func (stubJudge) RewriteQuestion(_ context.Context, q string) (string, error) { return q, nil }
func (stubJudge) ChooseSummaryStrategy(context.Context, string, []state.SourceType) (string, error) {
	return "", errors.New("unused")
}

type stubGenerator struct{ block bool }

func (g stubGenerator) Generate(ctx context.Context, question string, docs []state.Document) (string, error) {
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return fmt.Sprintf("answer to %s", question), nil
}

func (g stubGenerator) GenerateWithCitations(ctx context.Context, question string, _ map[state.SourceType][]state.Document, strategy string) (string, error) {
	return g.Generate(ctx, question, nil)
}

type stubWeb struct{}

func (stubWeb) Search(context.Context, string, int) ([]port.WebResult, error) {
	return []port.WebResult{{Content: "web"}}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType())
	}
	return out
}

type failingPersister struct{ NopPersister }

func (failingPersister) Save(context.Context, Record) error { return errors.New("disk full") }

func builder(clk *clock, gen stubGenerator) Builder {
	return func(store *memory.Store) (*workflow.Workflow, error) {
		return workflow.Build(workflow.Deps{
			Retriever: stubRetriever{},
			Judge:     stubJudge{},
			Generator: gen,
			Web:       stubWeb{},
			Memory:    store,
			Now:       clk.Now,
		})
	}
}

func newRegistry(t *testing.T, cfg Config, gen stubGenerator, opts ...Option) (*Registry, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	r, err := NewRegistry(cfg, builder(clk, gen), opts...)
	require.NoError(t, err)
	return r, clk
}
