package workflow

import (
	"context"

	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/state"
)

const (
	qualityWithDocuments    = 0.8
	qualityWithoutDocuments = 0.3
)

// finalizeMemory records the outcome of the run and commits every memory
// write the run buffered. It is the only node that mutates the store.
func (n *nodes) finalizeMemory(ctx context.Context, s state.GraphState) (state.Update, error) {
	rc := n.run(ctx)
	elapsed := n.deps.Now().Sub(rc.started).Seconds()
	question := s.OriginalQuestion()

	quality := qualityWithoutDocuments
	if len(s.Documents) > 0 {
		quality = qualityWithDocuments
	}
	if decision := inferDecision(s); decision != "" {
		rc.journal.LearnRoutingPattern(question, decision, quality, elapsed)
	}

	used := make([]string, 0, len(s.Documents))
	for _, d := range s.Documents {
		used = append(used, d.SourceFile())
	}
	rc.journal.AppendConversation(memory.Turn{
		Query:       question,
		Response:    s.Answer,
		ContextUsed: used,
		Timestamp:   n.deps.Now(),
	})
	rc.journal.RecordResponseTime(elapsed)

	applied, err := n.mem.Commit(ctx, rc.journal)
	if err != nil {
		return state.Update{}, err
	}
	n.log.Debug(module, "memory finalized", map[string]interface{}{
		"applied":      applied,
		"writes":       rc.journal.Len(),
		"quality":      quality,
		"elapsed_secs": elapsed,
	})
	return state.Update{ToolCalls: toolCall(NodeFinalizeMemory)}, nil
}

// inferDecision returns the recorded route, or reconstructs one from the
// search flags when routing left nothing behind.
func inferDecision(s state.GraphState) string {
	if s.RoutingMemory != nil && s.RoutingMemory.Decision != "" {
		return s.RoutingMemory.Decision
	}
	switch {
	case s.VectorstoreSearched && s.WebSearched:
		return state.RouteWebSupplement
	case s.VectorstoreSearched:
		return state.RouteVectorstore
	case s.WebSearched:
		return state.RouteWebSearch
	}
	return ""
}
