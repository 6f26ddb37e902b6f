package workflow

import (
	"context"
	"errors"

	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
)

// Edge decisions.
const (
	DecisionIntegrateWeb       = "integrate_web_search"
	DecisionFinancialWeb       = "financial_web_search"
	DecisionGenerate           = "generate"
	DecisionRegrade            = "regrade"
	DecisionCategorize         = "categorize"
	DecisionUseful             = state.GradeUseful
	DecisionNotUseful          = state.GradeNotUseful
	DecisionRetryGenerate      = "retry_generate"
	DecisionRetryWithCitations = "retry_with_citations"
)

// lenientFeedback is the average user feedback above which grading keeps
// documents the judge could not decide on.
const lenientFeedback = 0.7

// gradeDocuments keeps the documents the judge marks relevant. In
// cross-reference mode rejected documents are re-admitted in their original
// order until CrossRefMinimum is reached.
func (n *nodes) gradeDocuments(ctx context.Context, s state.GraphState) (state.Update, error) {
	rc := n.run(ctx)
	question := s.Question()

	lenient := false
	if avg, ok := n.mem.AverageFeedback(); ok && avg > lenientFeedback {
		lenient = true
	}

	kept := make([]state.Document, 0, len(s.Documents))
	rejected := make([]state.Document, 0, len(s.Documents))
	for _, d := range s.Documents {
		if err := ctx.Err(); err != nil {
			return state.Update{}, err
		}
		relevant, err := n.deps.Judge.GradeRelevance(ctx, question, d.Content)
		switch {
		case err == nil && relevant:
			kept = append(kept, d)
		case err == nil:
			rejected = append(rejected, d)
		case errors.Is(err, port.ErrUnparsable) && !lenient:
			rejected = append(rejected, d)
		default:
			n.log.Warn(module, "relevance grading failed, keeping document", map[string]interface{}{
				"error":   err.Error(),
				"lenient": lenient,
			})
			kept = append(kept, d)
		}
	}
	passed := len(kept)

	backfilled := 0
	if s.CrossReferenceActive() {
		for _, d := range rejected {
			if len(kept) >= n.cfg.CrossRefMinimum {
				break
			}
			kept = append(kept, d)
			backfilled++
		}
	}

	if len(s.Documents) > 0 && passed > 0 {
		rc.journal.RecordVectorstoreScore(float64(passed) / float64(len(s.Documents)))
	}

	n.log.Debug(module, "grade documents", map[string]interface{}{
		"total":      len(s.Documents),
		"passed":     passed,
		"backfilled": backfilled,
		"lenient":    lenient,
	})
	return state.Update{
		Documents: &kept,
		ToolCalls: toolCall(NodeGradeDocuments),
	}, nil
}

// decideToGenerate is the conditional edge out of grading. Every arm either
// moves toward generation or spends retry budget, so it cannot stall.
func (n *nodes) decideToGenerate(s state.GraphState) string {
	retriesLeft := s.RetryCount < n.cfg.MaxRetries
	if len(s.Documents) == 0 {
		switch {
		case !s.WebSearched && s.VectorstoreSearched && retriesLeft:
			return DecisionIntegrateWeb
		case !s.WebSearched && retriesLeft:
			return DecisionFinancialWeb
		default:
			return DecisionGenerate
		}
	}
	if len(s.Documents) < n.cfg.ScantThreshold && !s.WebSearched {
		return DecisionIntegrateWeb
	}
	return DecisionGenerate
}
