package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"filings-rag-be/pkg/rag/state"
)

var errEmptyAnswer = errors.New("empty answer")

// generate drafts an answer from the flat document list. Every attempt counts
// against the retry budget.
func (n *nodes) generate(ctx context.Context, s state.GraphState) (state.Update, error) {
	retry := s.RetryCount + 1
	answer, err := n.deps.Generator.Generate(ctx, s.Question(), s.Documents)
	return n.afterGeneration(ctx, s, NodeGenerate, retry, answer, err)
}

// generateWithCitations drafts an answer from the source partitions so the
// answer can attribute each claim.
func (n *nodes) generateWithCitations(ctx context.Context, s state.GraphState) (state.Update, error) {
	retry := s.RetryCount + 1
	strategy := s.SummaryStrategy
	if strategy == "" {
		strategy = strategyFor(sourceTypes(s.DocumentSources))
	}
	answer, err := n.deps.Generator.GenerateWithCitations(ctx, s.Question(), s.DocumentSources, strategy)
	return n.afterGeneration(ctx, s, NodeGenerateWithCitations, retry, answer, err)
}

// afterGeneration keeps an earlier draft when a retry fails. Only a run that
// never produced any draft fails.
func (n *nodes) afterGeneration(ctx context.Context, s state.GraphState, node string, retry int, answer string, err error) (state.Update, error) {
	u := state.Update{RetryCount: state.Ref(retry), ToolCalls: toolCall(node)}
	if err == nil && strings.TrimSpace(answer) != "" {
		n.log.Debug(module, "generated", map[string]interface{}{"node": node, "retry_count": retry, "documents": len(s.Documents)})
		u.Generation = state.Ref(answer)
		return u, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return state.Update{}, ctxErr
	}
	if err == nil {
		err = errEmptyAnswer
	}
	if s.Generation != "" {
		n.log.Warn(module, "generation retry failed, keeping previous draft", map[string]interface{}{"node": node, "error": err.Error()})
		return u, nil
	}
	return state.Update{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}

// gradeGeneration checks grounding, then whether the answer addresses the
// question, and records the verdict the next edge acts on. Grader failures
// count as a pass. A verdict that would loop once the retry budget is spent is
// turned into useful.
func (n *nodes) gradeGeneration(ctx context.Context, s state.GraphState) (state.Update, error) {
	question := s.Question()
	limit := n.cfg.MaxRetries
	evidence := s.Documents
	if s.CrossReferenceActive() {
		limit++
		if len(s.DocumentSources) > 0 {
			evidence = flattenSources(s.DocumentSources)
		}
	}

	grounded, err := n.deps.Judge.GradeHallucination(ctx, evidence, s.Generation)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return state.Update{}, ctxErr
		}
		n.log.Warn(module, "hallucination grading failed, treating as grounded", map[string]interface{}{"error": err.Error()})
		grounded = true
	}

	var grade string
	switch {
	case !grounded && s.RetryCount >= limit:
		grade = state.GradeUseful
		n.log.Info(module, "retry budget spent, accepting ungrounded answer", map[string]interface{}{"retry_count": s.RetryCount, "limit": limit})
	case !grounded:
		grade = state.GradeNotSupported
	default:
		addresses, err := n.deps.Judge.GradeAnswer(ctx, question, s.Generation)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return state.Update{}, ctxErr
			}
			n.log.Warn(module, "answer grading failed, accepting answer", map[string]interface{}{"error": err.Error()})
			addresses = true
		}
		switch {
		case addresses:
			grade = state.GradeUseful
		case s.RetryCount >= 2:
			// a retry already happened; accept rather than rewrite again
			grade = state.GradeUseful
		default:
			grade = state.GradeNotUseful
		}
	}

	n.log.Debug(module, "grade generation", map[string]interface{}{
		"grounded":    grounded,
		"grade":       grade,
		"retry_count": s.RetryCount,
	})
	return state.Update{
		GenerationGrade: state.Ref(grade),
		ToolCalls:       toolCall(NodeGradeGeneration),
	}, nil
}

func generationDecision(s state.GraphState) string {
	switch s.GenerationGrade {
	case state.GradeNotUseful:
		return DecisionNotUseful
	case state.GradeNotSupported:
		if s.CrossReferenceActive() && len(s.DocumentSources) > 0 {
			return DecisionRetryWithCitations
		}
		return DecisionRetryGenerate
	default:
		return DecisionUseful
	}
}

// flattenSources lists partitioned documents in a stable source order.
func flattenSources(m map[state.SourceType][]state.Document) []state.Document {
	var out []state.Document
	for _, t := range sourceTypes(m) {
		out = append(out, m[t]...)
	}
	return out
}

// transformQuery rewrites the question for another retrieval pass. A failed
// rewrite retries with the question as it was.
func (n *nodes) transformQuery(ctx context.Context, s state.GraphState) (state.Update, error) {
	question := s.Question()
	rewritten, err := n.deps.Judge.RewriteQuestion(ctx, question)
	if err != nil || strings.TrimSpace(rewritten) == "" {
		if err != nil {
			n.log.Warn(module, "question rewrite failed", map[string]interface{}{"error": err.Error()})
		}
		rewritten = question
	}
	n.log.Debug(module, "transform query", map[string]interface{}{"from": question, "to": rewritten})
	return state.Update{
		Messages:  []state.Message{{Role: state.RoleRewritten, Text: strings.TrimSpace(rewritten)}},
		ToolCalls: toolCall(NodeTransformQuery),
	}, nil
}

func (n *nodes) showResult(_ context.Context, s state.GraphState) (state.Update, error) {
	return state.Update{
		Answer:    state.Ref(s.Generation),
		ToolCalls: toolCall(NodeShowResult),
	}, nil
}

