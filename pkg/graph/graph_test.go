package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Visits []string
	N      int
}

type inc struct {
	Node string
	By   int
}

func mergeCounter(s counter, u inc) counter {
	s.Visits = append(append([]string(nil), s.Visits...), u.Node)
	s.N += u.By
	return s
}

func step(name string, by int) NodeFunc[counter, inc] {
	return func(ctx context.Context, s counter) (inc, error) {
		return inc{Node: name, By: by}, nil
	}
}

func TestExecuteLinear(t *testing.T) {
	g := New(mergeCounter).
		AddNode("a", step("a", 1)).
		AddNode("b", step("b", 2)).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b")

	r, err := g.Compile()
	require.NoError(t, err)

	var events []Event
	out, err := r.Execute(context.Background(), counter{}, WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Visits)
	assert.Equal(t, 3, out.N)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Next)
	assert.Equal(t, End, events[1].Next)
}

func TestExecuteConditionalLoopStopsAtRouterExit(t *testing.T) {
	g := New(mergeCounter).
		AddNode("work", step("work", 1)).
		SetEntryPoint("work").
		AddConditionalEdges("work", func(s counter) string {
			if s.N >= 3 {
				return "done"
			}
			return "again"
		}, map[string]string{"again": "work", "done": End})

	r, err := g.Compile()
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), counter{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.N)
}

func TestRecursionLimit(t *testing.T) {
	g := New(mergeCounter).
		AddNode("spin", step("spin", 1)).
		SetEntryPoint("spin").
		AddEdge("spin", "spin")

	r, err := g.Compile(WithStepCeiling(5))
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), counter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursionLimit))

	var rle *RecursionLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 5, rle.Limit)
	assert.Equal(t, 5, out.N, "exactly the ceiling number of visits ran")
}

func TestExactlyCeilingVisitsSucceeds(t *testing.T) {
	g := New(mergeCounter).
		AddNode("work", step("work", 1)).
		SetEntryPoint("work").
		AddConditionalEdges("work", func(s counter) string {
			if s.N == 4 {
				return End
			}
			return "work"
		}, nil)

	r, err := g.Compile(WithStepCeiling(4))
	require.NoError(t, err)
	out, err := r.Execute(context.Background(), counter{})
	require.NoError(t, err)
	assert.Equal(t, 4, out.N)
}

func TestNodeErrorWrapsCause(t *testing.T) {
	boom := errors.New("boom")
	g := New(mergeCounter).
		AddNode("a", step("a", 1)).
		AddNode("b", func(ctx context.Context, s counter) (inc, error) { return inc{}, boom }).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b")

	r, err := g.Compile()
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), counter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ne *NodeError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "b", ne.Node)
	assert.Equal(t, 2, ne.Step)
	assert.Equal(t, 1, out.N)
}

func TestUnmappedDecision(t *testing.T) {
	g := New(mergeCounter).
		AddNode("a", step("a", 1)).
		SetEntryPoint("a").
		AddConditionalEdges("a", func(counter) string { return "nowhere" }, map[string]string{"x": End})

	r, err := g.Compile()
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), counter{})
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestCancelledContextStopsBeforeNextNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(mergeCounter).
		AddNode("a", func(context.Context, counter) (inc, error) {
			cancel()
			return inc{Node: "a", By: 1}, nil
		}).
		AddNode("b", step("b", 100)).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b")

	r, err := g.Compile()
	require.NoError(t, err)
	out, err := r.Execute(ctx, counter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, out.N)
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[counter, inc]
		want  error
	}{
		{
			name: "missing entry point",
			build: func() *Graph[counter, inc] {
				return New(mergeCounter).AddNode("a", step("a", 1)).SetFinishPoint("a")
			},
			want: ErrNoEntryPoint,
		},
		{
			name: "edge to unknown node",
			build: func() *Graph[counter, inc] {
				return New(mergeCounter).AddNode("a", step("a", 1)).SetEntryPoint("a").AddEdge("a", "ghost")
			},
			want: ErrUnknownNode,
		},
		{
			name: "node without outgoing edge",
			build: func() *Graph[counter, inc] {
				return New(mergeCounter).
					AddNode("a", step("a", 1)).
					AddNode("b", step("b", 1)).
					SetEntryPoint("a").
					SetFinishPoint("a")
			},
			want: ErrDanglingNode,
		},
		{
			name: "duplicate node",
			build: func() *Graph[counter, inc] {
				return New(mergeCounter).
					AddNode("a", step("a", 1)).
					AddNode("a", step("a", 2)).
					SetEntryPoint("a").
					SetFinishPoint("a")
			},
			want: ErrDuplicateNode,
		},
		{
			name: "conditional route to unknown node",
			build: func() *Graph[counter, inc] {
				return New(mergeCounter).
					AddNode("a", step("a", 1)).
					SetEntryPoint("a").
					AddConditionalEdges("a", func(counter) string { return "x" }, map[string]string{"x": "ghost"})
			},
			want: ErrUnknownNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
