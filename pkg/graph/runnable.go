package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Event describes one finished node visit.
type Event struct {
	Node     string
	Step     int
	Next     string
	Duration time.Duration
	Err      error
}

// Observer receives node events synchronously, in visit order.
type Observer func(Event)

type runConfig struct {
	stepCeiling int
	observers   []Observer
	tracerName  string
}

type Option func(*runConfig)

// WithStepCeiling sets the maximum number of node visits per execution.
func WithStepCeiling(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.stepCeiling = n
		}
	}
}

// WithObserver adds an observer. Usable at compile time or per execution.
func WithObserver(o Observer) Option {
	return func(c *runConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func WithTracerName(name string) Option {
	return func(c *runConfig) {
		c.tracerName = name
	}
}

// Runnable is a compiled, immutable graph. It is safe for concurrent use as
// long as node functions are.
type Runnable[S, U any] struct {
	nodes      map[string]NodeFunc[S, U]
	edges      map[string]edgeConfig[S]
	entryPoint string
	merge      MergeFunc[S, U]
	cfg        runConfig
}

// StepCeiling returns the configured visit ceiling.
func (r *Runnable[S, U]) StepCeiling() int {
	return r.cfg.stepCeiling
}

// Execute runs from the entry point until End. On failure the returned state
// is the last successfully merged one.
func (r *Runnable[S, U]) Execute(ctx context.Context, initial S, opts ...Option) (S, error) {
	cfg := r.cfg
	cfg.observers = append([]Observer(nil), r.cfg.observers...)
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := otel.Tracer(cfg.tracerName)

	current := initial
	node := r.entryPoint
	prev := ""
	for step := 1; node != End; step++ {
		if err := ctx.Err(); err != nil {
			return current, fmt.Errorf("graph: interrupted before %q: %w", node, err)
		}
		if step > cfg.stepCeiling {
			return current, &RecursionLimitError{Limit: cfg.stepCeiling, LastNode: prev, NextNode: node}
		}

		fn, ok := r.nodes[node]
		if !ok {
			return current, fmt.Errorf("%w: %q", ErrUnknownNode, node)
		}

		spanCtx, span := tracer.Start(ctx, "graph.node."+node)
		span.SetAttributes(attribute.String("graph.node", node), attribute.Int("graph.step", step))

		started := time.Now()
		update, err := fn(spanCtx, current)
		elapsed := time.Since(started)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			notify(cfg.observers, Event{Node: node, Step: step, Duration: elapsed, Err: err})
			return current, &NodeError{Node: node, Step: step, Err: err}
		}
		current = r.merge(current, update)

		next, err := r.next(node, current)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			notify(cfg.observers, Event{Node: node, Step: step, Duration: elapsed, Err: err})
			return current, err
		}
		span.SetAttributes(attribute.String("graph.next", next))
		span.End()

		notify(cfg.observers, Event{Node: node, Step: step, Next: next, Duration: elapsed})
		prev, node = node, next
	}
	return current, nil
}

func (r *Runnable[S, U]) next(node string, s S) (string, error) {
	e, ok := r.edges[node]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrDanglingNode, node)
	}
	if !e.conditional {
		return e.toNode, nil
	}
	decision := e.router(s)
	if e.routes == nil {
		if _, ok := r.nodes[decision]; ok || decision == End {
			return decision, nil
		}
		return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, decision, node)
	}
	to, ok := e.routes[decision]
	if !ok {
		return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, decision, node)
	}
	return to, nil
}

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o(ev)
	}
}
