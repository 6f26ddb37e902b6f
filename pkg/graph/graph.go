// Package graph is a small state-machine engine: typed nodes produce partial
// updates, a merge function folds them into the state, and static or
// conditional edges pick the next node until End is reached.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// End is the terminal pseudo-node.
const End = "__END__"

// DefaultStepCeiling bounds node visits per execution when no option overrides it.
const DefaultStepCeiling = 35

// NodeFunc reads the current state and returns a partial update.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// RouterFunc picks the next branch. It must be total: every state maps to a
// decision present in the edge's route table.
type RouterFunc[S any] func(state S) string

// MergeFunc folds an update into the state.
type MergeFunc[S, U any] func(state S, update U) S

type edgeConfig[S any] struct {
	conditional bool
	toNode      string
	router      RouterFunc[S]
	routes      map[string]string
}

// Graph is the mutable builder. Compile freezes it into a Runnable.
type Graph[S, U any] struct {
	nodes      map[string]NodeFunc[S, U]
	order      []string
	edges      map[string]edgeConfig[S]
	entryPoint string
	merge      MergeFunc[S, U]
	buildErrs  []error
}

func New[S, U any](merge MergeFunc[S, U]) *Graph[S, U] {
	return &Graph[S, U]{
		nodes: make(map[string]NodeFunc[S, U]),
		edges: make(map[string]edgeConfig[S]),
		merge: merge,
	}
}

func (g *Graph[S, U]) AddNode(name string, fn NodeFunc[S, U]) *Graph[S, U] {
	if name == End || name == "" {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: reserved name %q", ErrUnknownNode, name))
		return g
	}
	if _, exists := g.nodes[name]; exists {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %q", ErrDuplicateNode, name))
		return g
	}
	g.nodes[name] = fn
	g.order = append(g.order, name)
	return g
}

func (g *Graph[S, U]) SetEntryPoint(name string) *Graph[S, U] {
	g.entryPoint = name
	return g
}

func (g *Graph[S, U]) SetFinishPoint(name string) *Graph[S, U] {
	return g.AddEdge(name, End)
}

func (g *Graph[S, U]) AddEdge(from, to string) *Graph[S, U] {
	g.edges[from] = edgeConfig[S]{toNode: to}
	return g
}

// AddConditionalEdges routes out of from using router. routes maps router
// decisions to node names; a nil map means the decision is the node name.
func (g *Graph[S, U]) AddConditionalEdges(from string, router RouterFunc[S], routes map[string]string) *Graph[S, U] {
	g.edges[from] = edgeConfig[S]{
		conditional: true,
		router:      router,
		routes:      routes,
	}
	return g
}

// Compile validates the topology and returns an executable graph.
func (g *Graph[S, U]) Compile(opts ...Option) (*Runnable[S, U], error) {
	errs := append([]error(nil), g.buildErrs...)

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, ok := g.nodes[g.entryPoint]; !ok {
		errs = append(errs, fmt.Errorf("%w: entry point %q", ErrUnknownNode, g.entryPoint))
	}
	if g.merge == nil {
		errs = append(errs, errors.New("graph: merge function is nil"))
	}

	froms := make([]string, 0, len(g.edges))
	for from := range g.edges {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	for _, from := range froms {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source %q", ErrUnknownNode, from))
			continue
		}
		e := g.edges[from]
		if !e.conditional {
			if !g.isTarget(e.toNode) {
				errs = append(errs, fmt.Errorf("%w: edge %q -> %q", ErrUnknownNode, from, e.toNode))
			}
			continue
		}
		if e.router == nil {
			errs = append(errs, fmt.Errorf("graph: conditional edge from %q has no router", from))
		}
		for decision, to := range e.routes {
			if !g.isTarget(to) {
				errs = append(errs, fmt.Errorf("%w: route %q from %q -> %q", ErrUnknownNode, decision, from, to))
			}
		}
	}

	for _, name := range g.order {
		if _, ok := g.edges[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDanglingNode, name))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := runConfig{stepCeiling: DefaultStepCeiling, tracerName: "graph"}
	for _, opt := range opts {
		opt(&cfg)
	}

	nodes := make(map[string]NodeFunc[S, U], len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	edges := make(map[string]edgeConfig[S], len(g.edges))
	for k, v := range g.edges {
		edges[k] = v
	}

	return &Runnable[S, U]{
		nodes:      nodes,
		edges:      edges,
		entryPoint: g.entryPoint,
		merge:      g.merge,
		cfg:        cfg,
	}, nil
}

func (g *Graph[S, U]) isTarget(name string) bool {
	if name == End {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}
