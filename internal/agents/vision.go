package agents

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"sync"

	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/provider"
)

type visionState struct {
	AgentID         string `json:"agent_id"`
	Schema          string `json:"schema"`
	Query           string `json:"query"`
	Generation      string `json:"generation"`
	ImageBase64     string `json:"image_base64"`
	ImageContent    string `json:"image_content_type"`
	ExecutionPrompt string `json:"execution_system_prompt"`
}

// VisionDocumentAgent answers queries about an attached document image with
// a single multimodal completion. The graph has one node and no branching.
type VisionDocumentAgent struct {
	rt *Runtime

	once sync.Once
	wf   *graph.Workflow[visionState]
	err  error
}

// NewVisionDocumentAgent creates a VisionDocumentAgent.
func NewVisionDocumentAgent(rt *Runtime) *VisionDocumentAgent {
	return &VisionDocumentAgent{rt: rt}
}

func (a *VisionDocumentAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	return seedPromptSettings(ctx, a.rt, agentID, schema, map[string]string{
		"execution_system_prompt": "vision_document/execution_system_prompt",
	})
}

func (a *VisionDocumentAgent) workflow() (*graph.Workflow[visionState], error) {
	a.once.Do(func() {
		b := graph.NewBuilder[visionState]("vision_document")
		b.AddNode("generate", a.generate)
		b.AddEdge(graph.Start, "generate")
		b.AddEdge("generate", graph.End)
		a.wf, a.err = b.Compile(a.rt.Checkpointer)
	})
	return a.wf, a.err
}

func (a *VisionDocumentAgent) generate(ctx context.Context, s *visionState) (*graph.Command, error) {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	a.rt.progress(ctx, s.AgentID, "Analyzing image...")

	messages := []provider.Message{
		provider.SystemMessage(s.ExecutionPrompt),
		{
			Role: provider.RoleHuman,
			Parts: []provider.ContentPart{
				{Type: "text", Text: fmt.Sprintf("<query>%s</query>", s.Query)},
				{Type: "image_url", ImageURL: fmt.Sprintf("data:%s;base64,%s", s.ImageContent, s.ImageBase64)},
			},
		},
	}
	resp, err := model.Client.Chat(ctx, model.Request(messages))
	if err != nil {
		return nil, err
	}

	s.Generation = resp.Content
	a.rt.progress(ctx, s.AgentID, resp.Content)
	return nil, nil
}

func (a *VisionDocumentAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*visionState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}
	attachment, err := a.rt.Store.GetAttachment(ctx, schema, req.AttachmentID)
	if err != nil {
		return nil, err
	}

	prompt, err := renderPrompt(settings, "execution_system_prompt", baseVars(nil))
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(attachment.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &visionState{
		AgentID:         req.AgentID,
		Schema:          schema,
		Query:           req.MessageContent,
		ExecutionPrompt: prompt,
		ImageBase64:     base64.StdEncoding.EncodeToString(attachment.RawContent),
		ImageContent:    contentType,
	}, nil
}

func (a *VisionDocumentAgent) formatResponse(s *visionState) (string, map[string]any) {
	return s.Generation, map[string]any{
		"agent_id":   s.AgentID,
		"query":      s.Query,
		"generation": s.Generation,
	}
}

func (a *VisionDocumentAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
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
