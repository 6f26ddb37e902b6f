package graph

import (
	"errors"
	"fmt"
)

var (
	ErrRecursionLimit = errors.New("graph: recursion limit exceeded")
	ErrNoEntryPoint   = errors.New("graph: entry point not set")
	ErrUnknownNode    = errors.New("graph: unknown node")
	ErrDanglingNode   = errors.New("graph: node has no outgoing edge")
	ErrUnknownRoute   = errors.New("graph: router returned unmapped decision")
	ErrDuplicateNode  = errors.New("graph: duplicate node")
)

// RecursionLimitError is returned when an execution visits more nodes than the
// configured ceiling. It matches ErrRecursionLimit with errors.Is.
type RecursionLimitError struct {
	Limit    int
	LastNode string
	NextNode string
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("graph: recursion limit of %d reached after %q (next %q)", e.Limit, e.LastNode, e.NextNode)
}

func (e *RecursionLimitError) Is(target error) bool {
	return target == ErrRecursionLimit
}

// NodeError wraps a failure returned by a node.
type NodeError struct {
	Node string
	Step int
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("graph: node %q failed at step %d: %v", e.Node, e.Step, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
