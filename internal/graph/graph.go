// Package graph is the workflow execution engine. An agent variant declares
// named nodes and edges over its own state type, compiles the graph against a
// checkpointer, and invokes it with a thread-scoped config. Execution is
// strictly sequential: one node at a time, a checkpoint written after every
// transition, resume driven purely by reusing the same thread id.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved node names.
const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultRecursionLimit bounds how many node transitions one invocation may
// make before the engine aborts, guarding against routing loops.
const DefaultRecursionLimit = 30

// ErrRecursionLimit is returned when an invocation exceeds its step budget.
var ErrRecursionLimit = errors.New("graph recursion limit reached")

// Command is returned by a node to steer execution to a specific node,
// overriding the graph's declared edges. A nil Command (or empty Goto)
// defers to conditional and static edges.
type Command struct {
	Goto string
}

// NodeFunc executes one step, mutating the shared state in place.
type NodeFunc[S any] func(ctx context.Context, state *S) (*Command, error)

// RouteFunc picks the outgoing edge for a conditional transition. It must
// return a declared node name or End.
type RouteFunc[S any] func(ctx context.Context, state *S) string

// StepLimiter is implemented by state types that carry a remaining-steps
// budget. The engine refreshes it before every node so routing functions can
// force termination.
type StepLimiter interface {
	SetRemainingSteps(int)
}

// MergeFunc folds fresh invocation input into state restored from a
// checkpoint when a thread resumes mid-graph.
type MergeFunc[S any] func(restored, input *S)

// Builder accumulates the node and edge declarations for one agent variant.
type Builder[S any] struct {
	name        string
	nodes       map[string]NodeFunc[S]
	edges       map[string]string
	conditional map[string]RouteFunc[S]
	entry       string
	merge       MergeFunc[S]
}

// NewBuilder creates an empty graph builder.
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{
		name:        name,
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]RouteFunc[S]),
	}
}

// AddNode registers a named step.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	b.nodes[name] = fn
	return b
}

// AddEdge declares a static transition. An edge from Start sets the entry
// node.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if from == Start {
		b.entry = to
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdge declares a routed transition out of a node.
func (b *Builder[S]) AddConditionalEdge(from string, route RouteFunc[S]) *Builder[S] {
	b.conditional[from] = route
	return b
}

// OnResume sets the merge applied when an invocation picks up a checkpointed
// thread, letting the new turn's input join the restored state.
func (b *Builder[S]) OnResume(merge MergeFunc[S]) *Builder[S] {
	b.merge = merge
	return b
}

// Compile validates the declarations and binds them to a checkpointer,
// producing an executable workflow. A nil checkpointer disables persistence.
func (b *Builder[S]) Compile(cp Checkpointer) (*Workflow[S], error) {
	if b.entry == "" {
		return nil, fmt.Errorf("graph %s: no entry edge from start", b.name)
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("graph %s: entry node %q not declared", b.name, b.entry)
	}
	for from, to := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("graph %s: edge from undeclared node %q", b.name, from)
		}
		if to != End {
			if _, ok := b.nodes[to]; !ok {
				return nil, fmt.Errorf("graph %s: edge to undeclared node %q", b.name, to)
			}
		}
	}
	for from := range b.conditional {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("graph %s: conditional edge from undeclared node %q", b.name, from)
		}
	}
	return &Workflow[S]{builder: b, checkpointer: cp}, nil
}

// Config scopes one invocation.
type Config struct {
	ThreadID       string
	RecursionLimit int
}

// Workflow is a compiled, executable graph.
type Workflow[S any] struct {
	builder      *Builder[S]
	checkpointer Checkpointer
}

// Invoke runs the graph to completion and returns the final state. Any
// checkpoint for the thread is restored and merged with the input first: a
// thread interrupted mid-graph continues from the checkpointed node without
// re-executing completed nodes, while a thread whose previous turn finished
// restarts at the entry node carrying the accumulated state forward.
func (w *Workflow[S]) Invoke(ctx context.Context, input *S, cfg Config) (*S, error) {
	limit := cfg.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	state := input
	current := w.builder.entry
	step := 0

	if w.checkpointer != nil && cfg.ThreadID != "" {
		ckpt, err := w.checkpointer.Get(ctx, cfg.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", cfg.ThreadID, err)
		}
		if ckpt != nil {
			restored := new(S)
			if err := json.Unmarshal(ckpt.State, restored); err != nil {
				return nil, fmt.Errorf("restore checkpoint %s: %w", cfg.ThreadID, err)
			}
			if w.builder.merge != nil {
				w.builder.merge(restored, input)
			}
			state = restored
			if ckpt.Next != "" && ckpt.Next != End {
				current = ckpt.Next
				step = ckpt.Step
			}
		}
	}

	for current != End {
		if step >= limit {
			return state, fmt.Errorf("graph %s at node %s after %d steps: %w",
				w.builder.name, current, step, ErrRecursionLimit)
		}
		fn, ok := w.builder.nodes[current]
		if !ok {
			return state, fmt.Errorf("graph %s: unknown node %q", w.builder.name, current)
		}

		if sl, ok := any(state).(StepLimiter); ok {
			sl.SetRemainingSteps(limit - step)
		}

		cmd, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph %s node %s: %w", w.builder.name, current, err)
		}

		next, err := w.nextNode(ctx, current, cmd, state)
		if err != nil {
			return state, err
		}
		step++

		if err := w.save(ctx, cfg.ThreadID, next, step, state); err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}

func (w *Workflow[S]) nextNode(ctx context.Context, current string, cmd *Command, state *S) (string, error) {
	var next string
	switch {
	case cmd != nil && cmd.Goto != "":
		next = cmd.Goto
	case w.builder.conditional[current] != nil:
		next = w.builder.conditional[current](ctx, state)
	default:
		next = w.builder.edges[current]
	}
	if next == "" {
		return "", fmt.Errorf("graph %s: node %s has no outgoing edge", w.builder.name, current)
	}
	if next != End {
		if _, ok := w.builder.nodes[next]; !ok {
			return "", fmt.Errorf("graph %s: node %s routed to unknown node %q", w.builder.name, current, next)
		}
	}
	return next, nil
}

func (w *Workflow[S]) save(ctx context.Context, threadID, next string, step int, state *S) error {
	if w.checkpointer == nil || threadID == "" {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}
	return w.checkpointer.Put(ctx, &Checkpoint{
		ThreadID: threadID,
		Next:     next,
		Step:     step,
		State:    raw,
	})
}
