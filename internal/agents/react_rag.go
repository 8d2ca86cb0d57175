package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/rag"
	"github.com/nidhogg/agentlab/internal/tools"
)

type reactRagState struct {
	AgentID        string             `json:"agent_id"`
	Schema         string             `json:"schema"`
	CollectionName string             `json:"collection_name"`
	Messages       []provider.Message `json:"messages"`
	RemainingSteps int                `json:"remaining_steps"`

	ExecutionPrompt string `json:"execution_system_prompt"`
}

func (s *reactRagState) SetRemainingSteps(n int) { s.RemainingSteps = n }

// ReactRagAgent answers in a single pass: the query and the retrieved
// knowledge-base context are handed to the model together, with the
// conversation history carried across turns through the checkpointer.
type ReactRagAgent struct {
	rt *Runtime

	once sync.Once
	wf   *graph.Workflow[reactRagState]
	err  error
}

// NewReactRagAgent creates a ReactRagAgent.
func NewReactRagAgent(rt *Runtime) *ReactRagAgent {
	return &ReactRagAgent{rt: rt}
}

func (a *ReactRagAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	if err := seedPromptSettings(ctx, a.rt, agentID, schema, map[string]string{
		"execution_system_prompt": "react_rag/execution_system_prompt",
	}); err != nil {
		return err
	}
	return a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "collection_name", "knowledge_base")
}

func (a *ReactRagAgent) workflow() (*graph.Workflow[reactRagState], error) {
	a.once.Do(func() {
		b := graph.NewBuilder[reactRagState]("react_rag")
		b.AddNode("agent", a.run)
		b.AddEdge(graph.Start, "agent")
		b.AddEdge("agent", graph.End)
		b.OnResume(func(restored, input *reactRagState) {
			restored.Messages = MergeMessages(restored.Messages, input.Messages)
			restored.ExecutionPrompt = input.ExecutionPrompt
		})
		a.wf, a.err = b.Compile(a.rt.Checkpointer)
	})
	return a.wf, a.err
}

func (a *ReactRagAgent) run(ctx context.Context, s *reactRagState) (*graph.Command, error) {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	a.rt.progress(ctx, s.AgentID, "Generating response...")

	r := newReactor(model, tools.NewRegistry(a.rt.Logger), s.ExecutionPrompt, a.rt.Logger)
	produced, err := r.Run(ctx, s.Messages)
	if err != nil {
		return nil, err
	}
	s.Messages = MergeMessages(s.Messages, produced)
	return nil, nil
}

func (a *ReactRagAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*reactRagState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}
	prompt, err := renderPrompt(settings, "execution_system_prompt", baseVars(nil))
	if err != nil {
		return nil, err
	}

	embedder, err := a.rt.Provisioner.EmbeddingsModel(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}
	docs, err := a.rt.Documents.Search(ctx, embedder, schema, settings["collection_name"], req.MessageContent, 7)
	if err != nil {
		return nil, err
	}

	return &reactRagState{
		AgentID:         req.AgentID,
		Schema:          schema,
		CollectionName:  settings["collection_name"],
		ExecutionPrompt: prompt,
		Messages: []provider.Message{
			provider.HumanMessage(fmt.Sprintf("<query>%s</query> <context>%s</context>",
				req.MessageContent, rag.JoinContent(docs, "\n---\n"))),
		},
	}, nil
}

func (a *ReactRagAgent) formatResponse(s *reactRagState) (string, map[string]any) {
	content := ""
	if len(s.Messages) > 0 {
		content = s.Messages[len(s.Messages)-1].Content
	}
	return content, map[string]any{"messages": messagesData(s.Messages)}
}

func (a *ReactRagAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
	wf, err := a.workflow()
	if err != nil {
		return nil, err
	}
	input, err := a.getInputParams(ctx, req, schema)
	if err != nil {
		return nil, err
	}
	return runWorkflow(ctx, a.rt, req.AgentID, wf, input, a.formatResponse)
}
