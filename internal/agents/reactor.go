package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/provision"
	"github.com/nidhogg/agentlab/internal/tools"
)

// reactor is a single-loop tool-calling sub-agent: prompt the model, execute
// whatever tools it requests, feed the results back, repeat until the model
// answers without tool calls or the round budget runs out. Worker nodes
// delegate their actual work here.
type reactor struct {
	model    *provision.Model
	registry *tools.Registry
	prompt   string
	logger   *zap.Logger
}

func newReactor(model *provision.Model, registry *tools.Registry, systemPrompt string, logger *zap.Logger) *reactor {
	return &reactor{model: model, registry: registry, prompt: systemPrompt, logger: logger}
}

// Run executes the loop over the given conversation and returns the messages
// produced this turn, final answer last.
func (r *reactor) Run(ctx context.Context, messages []provider.Message) ([]provider.Message, error) {
	const maxToolRounds = 8

	convo := append([]provider.Message{provider.SystemMessage(r.prompt)}, messages...)
	start := len(convo)

	var final *provider.ChatResponse
	for round := 0; round < maxToolRounds; round++ {
		req := r.model.Request(convo)
		req.Tools = r.registry.Definitions()

		resp, err := r.model.Client.Chat(ctx, req)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 || resp.FinishReason != "tool_calls" {
			final = resp
			break
		}

		convo = append(convo, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result := r.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			convo = append(convo, provider.Message{
				Role:       provider.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
		r.logger.Debug("tool round complete",
			zap.Int("round", round+1),
			zap.Int("tool_calls", len(resp.ToolCalls)))
	}

	// A run that exhausts the round budget ends on a tool-call message already
	// in the conversation; only a terminating answer still needs appending.
	produced := append([]provider.Message{}, convo[start:]...)
	if final != nil {
		produced = append(produced, provider.AssistantMessage(final.Content, ""))
	}
	return produced, nil
}
