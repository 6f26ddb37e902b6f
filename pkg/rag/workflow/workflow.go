// Package workflow wires the retrieval, grading and generation nodes of the
// filings question-answering graph and runs them against one session's memory.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/graph"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
)

const module = "workflow"

// Node names.
const (
	NodeRoute                 = "route"
	NodeWebSearch             = "web_search"
	NodeRetrieve              = "retrieve"
	NodeRetrieveImages        = "retrieve_images"
	NodeGradeDocuments        = "grade_documents"
	NodeIntegrateWebSearch    = "integrate_web_search"
	NodeFinancialWebSearch    = "financial_web_search"
	NodeAnalyzeCrossReference = "analyze_cross_reference"
	NodeCategorizeDocuments   = "categorize_documents"
	NodeDetermineStrategy     = "determine_strategy"
	NodeGenerate              = "generate"
	NodeGenerateWithCitations = "generate_with_citations"
	NodeGradeGeneration       = "grade_generation"
	NodeTransformQuery        = "transform_query"
	NodeShowResult            = "show_result"
	NodeFinalizeMemory        = "finalize_memory"
)

// ErrGenerationFailed is returned when no answer could be produced at all.
var ErrGenerationFailed = errors.New("workflow: generation failed")

// Settings are the tunables of the control loop.
type Settings struct {
	MaxRetries      int
	StepCeiling     int
	ScantThreshold  int
	CrossRefMinimum int
	TopK            int
	WebResults      int
	CacheContext    int
	UseLLMRouter    bool
}

func DefaultSettings() Settings {
	return Settings{
		MaxRetries:      2,
		StepCeiling:     graph.DefaultStepCeiling,
		ScantThreshold:  2,
		CrossRefMinimum: 5,
		TopK:            5,
		WebResults:      3,
		CacheContext:    2,
	}
}

// Deps are the collaborators a workflow is built from. Memory is the session's
// own store; it is never shared between sessions.
type Deps struct {
	Retriever port.Retriever
	Judge     port.Judge
	Generator port.Generator
	Web       port.WebSearcher
	Memory    *memory.Store
	Logger    logger.ILogger
	Settings  Settings
	Now       func() time.Time
}

// Workflow is a compiled graph bound to one session's memory.
type Workflow struct {
	runnable *graph.Runnable[state.GraphState, state.Update]
	nodes    *nodes
}

// Build validates deps and compiles the graph.
func Build(deps Deps, opts ...graph.Option) (*Workflow, error) {
	if deps.Retriever == nil || deps.Judge == nil || deps.Generator == nil || deps.Web == nil {
		return nil, errors.New("workflow: retriever, judge, generator and web searcher are required")
	}
	if deps.Memory == nil {
		return nil, errors.New("workflow: memory store is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Settings = deps.Settings.withDefaults()

	n := &nodes{deps: deps, log: deps.Logger, mem: deps.Memory, cfg: deps.Settings}

	g := graph.New(state.Merge).
		AddNode(NodeRoute, n.route).
		AddNode(NodeWebSearch, n.webSearch).
		AddNode(NodeRetrieve, n.retrieve).
		AddNode(NodeRetrieveImages, n.retrieveImages).
		AddNode(NodeGradeDocuments, n.gradeDocuments).
		AddNode(NodeIntegrateWebSearch, n.integrateWebSearch).
		AddNode(NodeFinancialWebSearch, n.financialWebSearch).
		AddNode(NodeAnalyzeCrossReference, n.analyzeCrossReference).
		AddNode(NodeCategorizeDocuments, n.categorizeDocuments).
		AddNode(NodeDetermineStrategy, n.determineStrategy).
		AddNode(NodeGenerate, n.generate).
		AddNode(NodeGenerateWithCitations, n.generateWithCitations).
		AddNode(NodeGradeGeneration, n.gradeGeneration).
		AddNode(NodeTransformQuery, n.transformQuery).
		AddNode(NodeShowResult, n.showResult).
		AddNode(NodeFinalizeMemory, n.finalizeMemory)

	g.SetEntryPoint(NodeRoute)

	g.AddConditionalEdges(NodeRoute, routeDecision, map[string]string{
		state.RouteWebSearch:   NodeWebSearch,
		state.RouteVectorstore: NodeRetrieve,
	})
	g.AddEdge(NodeRetrieve, NodeRetrieveImages)
	g.AddEdge(NodeRetrieveImages, NodeGradeDocuments)
	g.AddConditionalEdges(NodeGradeDocuments, n.decideToGenerate, map[string]string{
		DecisionIntegrateWeb: NodeIntegrateWebSearch,
		DecisionFinancialWeb: NodeFinancialWebSearch,
		DecisionGenerate:     NodeAnalyzeCrossReference,
	})
	g.AddConditionalEdges(NodeIntegrateWebSearch, afterIntegration, map[string]string{
		DecisionRegrade:      NodeGradeDocuments,
		DecisionFinancialWeb: NodeFinancialWebSearch,
	})
	g.AddConditionalEdges(NodeAnalyzeCrossReference, afterCrossReference, map[string]string{
		DecisionCategorize: NodeCategorizeDocuments,
		DecisionGenerate:   NodeGenerate,
	})
	g.AddEdge(NodeCategorizeDocuments, NodeDetermineStrategy)
	g.AddEdge(NodeDetermineStrategy, NodeGenerateWithCitations)
	g.AddEdge(NodeFinancialWebSearch, NodeGenerate)
	g.AddEdge(NodeWebSearch, NodeGenerate)
	g.AddEdge(NodeGenerate, NodeGradeGeneration)
	g.AddEdge(NodeGenerateWithCitations, NodeGradeGeneration)
	g.AddConditionalEdges(NodeGradeGeneration, generationDecision, map[string]string{
		DecisionUseful:             NodeShowResult,
		DecisionNotUseful:          NodeTransformQuery,
		DecisionRetryGenerate:      NodeGenerate,
		DecisionRetryWithCitations: NodeGenerateWithCitations,
	})
	g.AddEdge(NodeTransformQuery, NodeRetrieve)
	g.AddEdge(NodeShowResult, NodeFinalizeMemory)
	g.SetFinishPoint(NodeFinalizeMemory)

	opts = append([]graph.Option{graph.WithStepCeiling(deps.Settings.StepCeiling), graph.WithTracerName("filings-rag/workflow")}, opts...)
	runnable, err := g.Compile(opts...)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}
	return &Workflow{runnable: runnable, nodes: n}, nil
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxRetries <= 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.StepCeiling <= 0 {
		s.StepCeiling = d.StepCeiling
	}
	if s.ScantThreshold <= 0 {
		s.ScantThreshold = d.ScantThreshold
	}
	if s.CrossRefMinimum <= 0 {
		s.CrossRefMinimum = d.CrossRefMinimum
	}
	if s.TopK <= 0 {
		s.TopK = d.TopK
	}
	if s.WebResults <= 0 {
		s.WebResults = d.WebResults
	}
	if s.CacheContext < 0 {
		s.CacheContext = d.CacheContext
	}
	return s
}

// Settings returns the effective settings.
func (w *Workflow) Settings() Settings {
	return w.nodes.cfg
}

// Run executes the graph for initial. Memory writes of the run are buffered
// and only committed by the finalize node while ctx is live, so an aborted run
// leaves the session memory as it was.
func (w *Workflow) Run(ctx context.Context, initial state.GraphState, opts ...graph.Option) (state.GraphState, error) {
	rc := &runContext{journal: w.nodes.mem.Begin(), started: w.nodes.deps.Now()}
	ctx = withRun(ctx, rc)

	final, err := w.runnable.Execute(ctx, initial, opts...)
	if err != nil {
		w.nodes.log.Warn(module, "workflow aborted", map[string]interface{}{
			"session_id": initial.SessionMetadata.SessionID,
			"error":      err.Error(),
			"pending":    rc.journal.Len(),
		})
		return final, err
	}
	return final, nil
}

type runContext struct {
	journal *memory.Journal
	started time.Time

	mu         sync.Mutex
	embeddings map[string][]float32
	searches   map[string]collectionEvidence
}

func (rc *runContext) evidence(key string) (collectionEvidence, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	ev, ok := rc.searches[key]
	return ev, ok
}

func (rc *runContext) remember(key string, ev collectionEvidence) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.searches == nil {
		rc.searches = make(map[string]collectionEvidence)
	}
	rc.searches[key] = ev
}

// embed returns the question embedding, computing it at most once per run.
func (n *nodes) embed(ctx context.Context, rc *runContext, text string) ([]float32, error) {
	rc.mu.Lock()
	if v, ok := rc.embeddings[text]; ok {
		rc.mu.Unlock()
		return v, nil
	}
	rc.mu.Unlock()

	v, err := n.deps.Retriever.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	rc.mu.Lock()
	if rc.embeddings == nil {
		rc.embeddings = make(map[string][]float32)
	}
	rc.embeddings[text] = v
	rc.mu.Unlock()
	return v, nil
}

type runKey struct{}

func withRun(ctx context.Context, rc *runContext) context.Context {
	return context.WithValue(ctx, runKey{}, rc)
}

// run returns the per-execution context. Nodes invoked outside Run (tests that
// call a node directly) get a fresh one whose journal is never committed.
func (n *nodes) run(ctx context.Context) *runContext {
	if rc, ok := ctx.Value(runKey{}).(*runContext); ok {
		return rc
	}
	return &runContext{journal: n.mem.Begin(), started: n.deps.Now()}
}

type nodes struct {
	deps Deps
	log  logger.ILogger
	mem  *memory.Store
	cfg  Settings
}

func toolCall(name string) []state.ToolCall {
	return []state.ToolCall{{Tool: name}}
}
