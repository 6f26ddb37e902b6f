package workflow

import (
	"context"
	"sort"
	"strings"

	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/state"

	"github.com/google/uuid"
)

const (
	excerptLength            = 200
	placeholderCitationScore = 0.5
)

// analyzeCrossReference asks once per execution whether the question spans
// several entities. It needs at least two documents to be worth asking.
func (n *nodes) analyzeCrossReference(ctx context.Context, s state.GraphState) (state.Update, error) {
	u := state.Update{ToolCalls: toolCall(NodeAnalyzeCrossReference)}
	if s.CrossReferenceAnalysis != nil || len(s.Documents) < 2 {
		return u, nil
	}

	analysis, err := n.deps.Judge.AnalyzeCrossReference(ctx, s.Question())
	if err != nil {
		n.log.Warn(module, "cross-reference analysis failed, answering without citations", map[string]interface{}{"error": err.Error()})
		analysis = state.CrossReference{Reasoning: "analysis unavailable"}
	}
	n.log.Debug(module, "cross-reference analysis", map[string]interface{}{
		"needs_cross_reference": analysis.NeedsCrossReference,
		"source_types":          analysis.SourceTypesNeeded,
	})
	u.CrossReferenceAnalysis = &analysis
	return u, nil
}

func afterCrossReference(s state.GraphState) string {
	if s.CrossReferenceActive() {
		return DecisionCategorize
	}
	return DecisionGenerate
}

// categorizeDocuments partitions the evidence by provenance, dropping
// duplicates, and builds the citation list in document order.
func (n *nodes) categorizeDocuments(_ context.Context, s state.GraphState) (state.Update, error) {
	sources := make(map[state.SourceType][]state.Document)
	citations := make([]state.Citation, 0, len(s.Documents))
	seen := make(map[string]struct{}, len(s.Documents))

	for _, d := range s.Documents {
		key := dedupKey(d)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		source := provenance(d)
		d.SourceType = source
		sources[source] = append(sources[source], d)

		id := d.ID()
		if id == "" {
			id = uuid.NewString()
		}
		score := d.Score
		if score <= 0 {
			score = placeholderCitationScore
		}
		citations = append(citations, state.Citation{
			SourceType:     source,
			DocumentID:     id,
			RelevanceScore: score,
			Excerpt:        excerpt(d.Content, excerptLength),
		})
	}

	counts := make(map[string]interface{}, len(sources))
	for k, v := range sources {
		counts[string(k)] = len(v)
	}
	n.log.Debug(module, "categorize documents", counts)

	return state.Update{
		DocumentSources: sources,
		CitationInfo:    &citations,
		ToolCalls:       toolCall(NodeCategorizeDocuments),
	}, nil
}

// provenance prefers the tag set at retrieval time and otherwise falls back to
// content heuristics: the image caption marker, web metadata, then freshness
// words in the text.
func provenance(d state.Document) state.SourceType {
	if d.SourceType != "" {
		return d.SourceType
	}
	if strings.HasPrefix(strings.TrimSpace(d.Content), state.ImageContentPrefix) {
		return state.SourceImage
	}
	if src, _ := d.Metadata["source"].(string); src == "web" {
		return state.SourceWeb
	}
	if _, ok := d.Metadata["url"]; ok {
		return state.SourceWeb
	}
	for _, w := range memory.Tokenize(d.Content) {
		if _, ok := temporalWords[w]; ok {
			return state.SourceWeb
		}
	}
	return state.SourceText
}

func dedupKey(d state.Document) string {
	if id := d.ID(); id != "" {
		return "id:" + id
	}
	return "content:" + strings.Join(strings.Fields(strings.ToLower(d.Content)), " ")
}

func excerpt(content string, max int) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}

// determineStrategy picks how the citation-aware generator should combine the
// partitions. The judge decides; a rule on the available source types is the
// fallback.
func (n *nodes) determineStrategy(ctx context.Context, s state.GraphState) (state.Update, error) {
	available := sourceTypes(s.DocumentSources)

	strategy, err := n.deps.Judge.ChooseSummaryStrategy(ctx, s.Question(), available)
	if err != nil || !validStrategy(strategy) {
		if err != nil {
			n.log.Warn(module, "strategy selection failed, using source rule", map[string]interface{}{"error": err.Error()})
		}
		strategy = strategyFor(available)
	}

	n.log.Debug(module, "summary strategy", map[string]interface{}{"strategy": strategy, "sources": len(available)})
	return state.Update{
		SummaryStrategy: state.Ref(strategy),
		ToolCalls:       toolCall(NodeDetermineStrategy),
	}, nil
}

func sourceTypes(m map[state.SourceType][]state.Document) []state.SourceType {
	out := make([]state.SourceType, 0, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func validStrategy(s string) bool {
	switch s {
	case state.StrategySingleSource, state.StrategyMultiVectorstore, state.StrategyIntegratedWeb:
		return true
	}
	return false
}

func strategyFor(available []state.SourceType) string {
	if len(available) <= 1 {
		return state.StrategySingleSource
	}
	var web, store bool
	for _, t := range available {
		switch t {
		case state.SourceWeb, state.SourceFinancialWeb:
			web = true
		default:
			store = true
		}
	}
	if web && store {
		return state.StrategyIntegratedWeb
	}
	return state.StrategyMultiVectorstore
}
