package agents

import (
	"context"

	"github.com/nidhogg/agentlab/internal/graph"
)

// runWorkflow is the shared turn protocol for graph-based variants: announce
// the turn, invoke the compiled graph under the agent's thread id, reduce the
// final state to a reply, announce completion. Graph errors propagate to the
// caller untouched; the checkpoint written after the last successful node
// makes the next attempt resume instead of restart.
func runWorkflow[S any](ctx context.Context, rt *Runtime, agentID string, wf *graph.Workflow[S], input *S, format func(*S) (string, map[string]any)) (*Reply, error) {
	rt.progress(ctx, agentID, "...")

	final, err := wf.Invoke(ctx, input, graph.Config{
		ThreadID:       agentID,
		RecursionLimit: graph.DefaultRecursionLimit,
	})
	if err != nil {
		return nil, err
	}

	content, data := format(final)
	rt.completed(ctx, agentID, content, data)

	return &Reply{
		MessageRole:    RoleAssistant,
		MessageContent: content,
		ResponseData:   data,
		AgentID:        agentID,
	}, nil
}
