package agents

import (
	"context"

	"github.com/nidhogg/agentlab/internal/provider"
)

// EchoAgent replies with the inbound content unchanged. It exists as a
// conformance fixture for the dispatch contract and for end-to-end tests
// that need a deterministic agent.
type EchoAgent struct {
	rt *Runtime
}

// NewEchoAgent creates an EchoAgent.
func NewEchoAgent(rt *Runtime) *EchoAgent {
	return &EchoAgent{rt: rt}
}

func (a *EchoAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	return a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "dummy_setting", "dummy_value")
}

func (a *EchoAgent) ProcessMessage(ctx context.Context, req *MessageRequest, _ string) (*Reply, error) {
	content := "Echo: " + req.MessageContent
	data := map[string]any{
		"messages": messagesData([]provider.Message{provider.AssistantMessage(content, "")}),
	}

	a.rt.progress(ctx, req.AgentID, "echo: "+req.MessageContent)

	return &Reply{
		MessageRole:    RoleAssistant,
		MessageContent: content,
		ResponseData:   data,
		AgentID:        req.AgentID,
	}, nil
}
