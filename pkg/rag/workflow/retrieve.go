package workflow

import (
	"context"
	"strings"

	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
)

// retrieve replaces the document set with text-collection hits, served from
// the session query cache when the same question was asked in the same
// conversational context.
func (n *nodes) retrieve(ctx context.Context, s state.GraphState) (state.Update, error) {
	rc := n.run(ctx)
	question := s.Question()
	cacheContext := n.mem.RecentQueries(n.cfg.CacheContext)

	if cached, ok := n.mem.GetCachedQueryResult(question, cacheContext); ok {
		n.log.Debug(module, "retrieve served from cache", map[string]interface{}{"documents": len(cached.Documents)})
		docs := cached.Documents
		return state.Update{
			Documents:           &docs,
			VectorstoreSearched: true,
			ToolCalls:           toolCall(NodeRetrieve),
		}, nil
	}

	docs := []state.Document{}
	embedding, err := n.embed(ctx, rc, question)
	if err != nil {
		n.log.Warn(module, "retrieve embedding failed", map[string]interface{}{"error": err.Error()})
	} else if ev := n.searchCollection(ctx, rc, embedding, port.CollectionText); ev.err == nil {
		for _, h := range ev.hits {
			docs = append(docs, h.ToDocument(state.SourceText))
		}
		quality := float64(len(docs)) / 4.0
		if quality > 1 {
			quality = 1
		}
		rc.journal.CacheQueryResult(question, memory.QueryResult{Documents: docs, Route: state.RouteVectorstore}, cacheContext, quality)
	}

	n.log.Debug(module, "retrieve", map[string]interface{}{"documents": len(docs)})
	return state.Update{
		Documents:           &docs,
		VectorstoreSearched: true,
		ToolCalls:           toolCall(NodeRetrieve),
	}, nil
}

// retrieveImages appends image-caption hits that belong to the company the
// question is about.
func (n *nodes) retrieveImages(ctx context.Context, s state.GraphState) (state.Update, error) {
	rc := n.run(ctx)
	question := s.Question()

	embedding, err := n.embed(ctx, rc, question)
	if err != nil {
		n.log.Warn(module, "image retrieval embedding failed", map[string]interface{}{"error": err.Error()})
		return state.Update{ToolCalls: toolCall(NodeRetrieveImages)}, nil
	}
	ev := n.searchCollection(ctx, rc, embedding, port.CollectionImage)
	if ev.err != nil || len(ev.hits) == 0 {
		return state.Update{ToolCalls: toolCall(NodeRetrieveImages)}, nil
	}

	company, err := n.deps.Judge.ExtractCompany(ctx, question)
	if err != nil {
		n.log.Warn(module, "company extraction failed, keeping all image hits", map[string]interface{}{"error": err.Error()})
		company = ""
	}

	kept := filterByCompany(ev.hits, company)
	docs := make([]state.Document, 0, len(kept))
	for _, h := range kept {
		docs = append(docs, h.ToDocument(state.SourceImage))
	}

	n.log.Debug(module, "retrieve images", map[string]interface{}{
		"company": company,
		"hits":    len(ev.hits),
		"kept":    len(docs),
	})
	return state.Update{
		AppendDocuments: docs,
		ToolCalls:       toolCall(NodeRetrieveImages),
	}, nil
}

// filterByCompany keeps hits whose company metadata occurs inside the
// extracted company name, case-insensitively. An empty name keeps everything.
func filterByCompany(hits []port.Hit, company string) []port.Hit {
	company = strings.ToLower(strings.TrimSpace(company))
	if company == "" {
		return hits
	}
	out := make([]port.Hit, 0, len(hits))
	for _, h := range hits {
		meta, _ := h.Metadata["company"].(string)
		meta = strings.ToLower(strings.TrimSpace(meta))
		if meta != "" && strings.Contains(company, meta) {
			out = append(out, h)
		}
	}
	return out
}
