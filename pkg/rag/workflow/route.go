package workflow

import (
	"context"
	"fmt"

	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"

	"golang.org/x/sync/errgroup"
)

// collectionEvidence aggregates one collection's top-k scores.
type collectionEvidence struct {
	hits  []port.Hit
	avg   float64
	max   float64
	err   error
	cache bool
}

// best is max(avg, max). The route thresholds are tuned against this value.
func (e collectionEvidence) best() float64 {
	if e.avg > e.max {
		return e.avg
	}
	return e.max
}

type routeInput struct {
	recommendation string
	temporal       temporalSignal
	bestOverall    float64
	confidence     int
}

// decideRoute applies, in order: learned recommendation, strong temporal
// override, confidence/score cascade, exploratory default. It always returns
// vectorstore or web_search.
func decideRoute(in routeInput) (string, bool) {
	switch {
	case in.recommendation == state.RouteVectorstore && in.bestOverall > 0.3:
		return state.RouteVectorstore, true
	case in.recommendation == state.RouteWebSearch && in.temporal.strong:
		return state.RouteWebSearch, true
	}

	if in.temporal.strong && (in.temporal.immediate || in.bestOverall < 0.6) {
		return state.RouteWebSearch, false
	}

	switch {
	case in.confidence >= 3 && in.bestOverall > 0.4:
		return state.RouteVectorstore, false
	case in.confidence >= 2 && in.bestOverall > 0.3:
		return state.RouteVectorstore, false
	case in.confidence >= 1 && in.bestOverall > 0.2:
		return state.RouteVectorstore, false
	case in.confidence >= 1:
		return state.RouteVectorstore, false
	case in.temporal.strong:
		return state.RouteWebSearch, false
	}
	return state.RouteVectorstore, false
}

func (n *nodes) route(ctx context.Context, s state.GraphState) (state.Update, error) {
	rc := n.run(ctx)
	started := n.deps.Now()
	question := s.Question()

	text, image := n.routingEvidence(ctx, rc, question)
	bestText, bestImage := text.best(), image.best()
	bestOverall := bestText
	if bestImage > bestOverall {
		bestOverall = bestImage
	}
	confidence := len(text.hits) + len(image.hits)

	recommendation, _ := n.mem.GetRoutingRecommendation(question)
	in := routeInput{
		recommendation: recommendation,
		temporal:       analyzeTemporal(question, started.Year()),
		bestOverall:    bestOverall,
		confidence:     confidence,
	}
	decision, fromRecommendation := decideRoute(in)

	if confidence == 0 && n.cfg.UseLLMRouter && !fromRecommendation {
		if routed, err := n.deps.Judge.Route(ctx, question, describeEvidence(text, image)); err != nil {
			n.log.Warn(module, "llm router failed, keeping heuristic route", map[string]interface{}{"error": err.Error()})
		} else if routed == state.RouteVectorstore || routed == state.RouteWebSearch {
			decision = routed
		}
	}

	rc.journal.IncrementTotalQueries()

	n.log.Debug(module, "route decided", map[string]interface{}{
		"decision":       decision,
		"recommendation": recommendation,
		"best_text":      bestText,
		"best_image":     bestImage,
		"confidence":     confidence,
		"temporal":       in.temporal.strong,
		"text_cached":    text.cache,
		"image_cached":   image.cache,
	})

	return state.Update{
		RoutingMemory: &state.RoutingMemory{
			Decision:            decision,
			Scores:              state.RouteScores{Text: bestText, Image: bestImage, Overall: bestOverall},
			Confidence:          confidence,
			ResponseTimeSeconds: n.deps.Now().Sub(started).Seconds(),
			TemporalQuery:       in.temporal.strong,
			FromRecommendation:  fromRecommendation,
		},
		ToolCalls: toolCall(NodeRoute),
	}, nil
}

// routingEvidence searches both collections in parallel. Failures degrade to
// empty evidence.
func (n *nodes) routingEvidence(ctx context.Context, rc *runContext, question string) (collectionEvidence, collectionEvidence) {
	embedding, err := n.embed(ctx, rc, question)
	if err != nil {
		n.log.Warn(module, "embedding failed, routing without vector evidence", map[string]interface{}{"error": err.Error()})
		return collectionEvidence{err: err}, collectionEvidence{err: err}
	}

	var text, image collectionEvidence
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text = n.searchCollection(gctx, rc, embedding, port.CollectionText)
		return nil
	})
	g.Go(func() error {
		image = n.searchCollection(gctx, rc, embedding, port.CollectionImage)
		return nil
	})
	_ = g.Wait()
	return text, image
}

// searchCollection returns the collection's evidence for embedding. Within one
// run each (embedding, collection) pair is searched at most once; across runs
// the session document cache answers.
func (n *nodes) searchCollection(ctx context.Context, rc *runContext, embedding []float32, c port.Collection) collectionEvidence {
	key := memory.EmbeddingKey(embedding, string(c))
	if ev, ok := rc.evidence(key); ok {
		return ev
	}

	if cached, ok := n.mem.GetCachedDocuments(embedding, string(c)); ok {
		hits := make([]port.Hit, len(cached.Documents))
		for i, d := range cached.Documents {
			hits[i] = port.Hit{Content: d.Content, Metadata: d.Metadata, Score: d.Score}
			if i < len(cached.Scores) {
				hits[i].Score = cached.Scores[i]
			}
		}
		ev := aggregate(hits)
		ev.cache = true
		rc.remember(key, ev)
		return ev
	}

	res, err := n.deps.Retriever.Search(ctx, embedding, c, n.cfg.TopK)
	if err != nil {
		n.log.Warn(module, "vector search failed", map[string]interface{}{"collection": string(c), "error": err.Error()})
		return collectionEvidence{err: err}
	}
	hits := res.Hits()

	docs := make([]state.Document, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		docs[i] = h.ToDocument(sourceFor(c))
		scores[i] = h.Score
	}
	rc.journal.CacheDocuments(embedding, string(c), docs, scores)
	ev := aggregate(hits)
	rc.remember(key, ev)
	return ev
}

func aggregate(hits []port.Hit) collectionEvidence {
	ev := collectionEvidence{hits: hits}
	if len(hits) == 0 {
		return ev
	}
	var sum float64
	for i, h := range hits {
		sum += h.Score
		if i == 0 || h.Score > ev.max {
			ev.max = h.Score
		}
	}
	ev.avg = sum / float64(len(hits))
	return ev
}

func sourceFor(c port.Collection) state.SourceType {
	if c == port.CollectionImage {
		return state.SourceImage
	}
	return state.SourceText
}

// routeDecision is the conditional edge out of the router.
func routeDecision(s state.GraphState) string {
	if s.RoutingMemory != nil && s.RoutingMemory.Decision == state.RouteWebSearch {
		return state.RouteWebSearch
	}
	return state.RouteVectorstore
}

// describeEvidence summarises the vector evidence for the optional LLM router.
func describeEvidence(text, image collectionEvidence) string {
	return fmt.Sprintf("text hits %d (best %.2f), image hits %d (best %.2f)",
		len(text.hits), text.best(), len(image.hits), image.best())
}
