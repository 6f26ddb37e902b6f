package workflow

import (
	"context"
	"strings"

	"filings-rag-be/pkg/rag/state"
)

const financialQuerySuffix = " financial results annual report 10-K filing"

// webSearch answers freshness-sensitive questions routed straight to the web.
// The snippets replace the document set.
func (n *nodes) webSearch(ctx context.Context, s state.GraphState) (state.Update, error) {
	docs := []state.Document{}
	if d, ok := n.searchWeb(ctx, s.Question(), state.SourceWeb); ok {
		docs = append(docs, d)
	}
	return state.Update{
		Documents:   &docs,
		WebSearched: true,
		ToolCalls:   toolCall(NodeWebSearch),
	}, nil
}

// integrateWebSearch supplements thin vectorstore evidence with web snippets.
func (n *nodes) integrateWebSearch(ctx context.Context, s state.GraphState) (state.Update, error) {
	u := state.Update{WebSearched: true, ToolCalls: toolCall(NodeIntegrateWebSearch)}
	if d, ok := n.searchWeb(ctx, s.Question(), state.SourceWeb); ok {
		u.AppendDocuments = []state.Document{d}
	}
	return u, nil
}

// financialWebSearch is the fallback when the filings gave nothing usable; the
// query is steered toward filing and earnings coverage.
func (n *nodes) financialWebSearch(ctx context.Context, s state.GraphState) (state.Update, error) {
	u := state.Update{WebSearched: true, ToolCalls: toolCall(NodeFinancialWebSearch)}
	if d, ok := n.searchWeb(ctx, s.Question()+financialQuerySuffix, state.SourceFinancialWeb); ok {
		u.AppendDocuments = []state.Document{d}
	}
	return u, nil
}

// searchWeb joins the top results into a single document. Failures and empty
// result sets yield no document.
func (n *nodes) searchWeb(ctx context.Context, query string, source state.SourceType) (state.Document, bool) {
	results, err := n.deps.Web.Search(ctx, query, n.cfg.WebResults)
	if err != nil {
		n.log.Warn(module, "web search failed", map[string]interface{}{"source": string(source), "error": err.Error()})
		return state.Document{}, false
	}

	parts := make([]string, 0, len(results))
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		parts = append(parts, r.Content)
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	n.log.Debug(module, "web search", map[string]interface{}{"source": string(source), "results": len(results), "used": len(parts)})
	if len(parts) == 0 {
		return state.Document{}, false
	}

	meta := map[string]interface{}{"source": "web"}
	if len(urls) > 0 {
		meta["url"] = urls[0]
		meta["source_file"] = urls[0]
		meta["urls"] = urls
	}
	return state.Document{
		Content:    strings.Join(parts, "\n"),
		Metadata:   meta,
		SourceType: source,
	}, true
}

// afterIntegration re-grades when the web added evidence, otherwise falls
// back to the financial search.
func afterIntegration(s state.GraphState) string {
	for _, d := range s.Documents {
		if d.SourceType == state.SourceWeb {
			return DecisionRegrade
		}
	}
	return DecisionFinancialWeb
}
