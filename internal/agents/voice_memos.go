package agents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/tools"
)

var memoWorkers = []workerProfile{
	{
		Name:       "content_analyst",
		Desc:       "Responsible for mapping relevant information, understanding user needs and conducting content analysis.",
		DescForLLM: "Outputs a Markdown report with findings.",
	},
	{
		Name:       "reporter",
		Desc:       "Responsible for formatting the answer to the user as a structured report.",
		DescForLLM: "Formats the answer to the user as a JSON document.",
	},
}

func toolNames(defs []provider.Tool) string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	return strings.Join(names, ", ")
}

func toolConfiguration(defs []provider.Tool) string {
	var sb strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Function.Name, d.Function.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

type voiceMemosState struct {
	AgentID            string               `json:"agent_id"`
	Schema             string               `json:"schema"`
	AttachmentID       string               `json:"attachment_id"`
	AudioFormat        string               `json:"audio_format"`
	AudioLanguageModel string               `json:"audio_language_model"`
	Query              string               `json:"query"`
	Transcription      string               `json:"transcription"`
	Next               string               `json:"next"`
	StructuredReport   *AudioAnalysisReport `json:"structured_report"`
	ExecutionPlan      *ExecutionPlan       `json:"execution_plan"`
	Messages           []provider.Message   `json:"messages"`
	RemainingSteps     int                  `json:"remaining_steps"`

	CoordinatorPrompt string `json:"coordinator_system_prompt"`
	PlannerPrompt     string `json:"planner_system_prompt"`
	SupervisorPrompt  string `json:"supervisor_system_prompt"`
	AnalystPrompt     string `json:"content_analyst_system_prompt"`
	ReporterPrompt    string `json:"reporter_system_prompt"`
}

func (s *voiceMemosState) SetRemainingSteps(n int) { s.RemainingSteps = n }

// VoiceMemosAgent turns an attached audio memo into a structured report.
// The coordinator transcribes the memo (or answers directly when no audio
// is attached), a planner and supervisor drive the content analyst and the
// reporter, and the turn ends once the structured report exists. The Azure
// and fast variants reconfigure the tool rosters and the graph through the
// function fields.
type VoiceMemosAgent struct {
	rt *Runtime

	coordinatorTools   func(s *voiceMemosState) *tools.Registry
	analystTools       func(s *voiceMemosState) *tools.Registry
	afterTranscription string
	addNodes           func(b *graph.Builder[voiceMemosState])

	once sync.Once
	wf   *graph.Workflow[voiceMemosState]
	err  error
}

// NewVoiceMemosAgent creates a VoiceMemosAgent.
func NewVoiceMemosAgent(rt *Runtime) *VoiceMemosAgent {
	a := &VoiceMemosAgent{rt: rt, afterTranscription: "planner"}
	a.coordinatorTools = func(*voiceMemosState) *tools.Registry {
		registry := tools.NewRegistry(rt.Logger)
		registry.Register(tools.WebSearchTool(rt.Tavily))
		registry.Register(tools.CrawlTool(rt.Tavily))
		return registry
	}
	a.analystTools = func(*voiceMemosState) *tools.Registry {
		return tools.NewRegistry(rt.Logger)
	}
	a.addNodes = func(b *graph.Builder[voiceMemosState]) {
		b.AddNode("coordinator", a.coordinator)
		b.AddNode("planner", a.planner)
		b.AddNode("supervisor", a.supervisor)
		b.AddNode("content_analyst", a.contentAnalyst)
		b.AddNode("reporter", a.reporter)
	}
	return a
}

func (a *VoiceMemosAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	if err := seedPromptSettings(ctx, a.rt, agentID, schema, map[string]string{
		"coordinator_system_prompt":     "voice_memos/coordinator_system_prompt",
		"planner_system_prompt":         "voice_memos/planner_system_prompt",
		"supervisor_system_prompt":      "voice_memos/supervisor_system_prompt",
		"content_analyst_system_prompt": "voice_memos/content_analyst_system_prompt",
		"reporter_system_prompt":        "voice_memos/reporter_system_prompt",
	}); err != nil {
		return err
	}
	if err := a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "audio_language_model", "gpt-4o-audio-preview"); err != nil {
		return err
	}
	return a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "audio_format", "mp3")
}

func (a *VoiceMemosAgent) workflow() (*graph.Workflow[voiceMemosState], error) {
	a.once.Do(func() {
		b := graph.NewBuilder[voiceMemosState]("voice_memos")
		a.addNodes(b)
		b.AddEdge(graph.Start, "coordinator")
		b.OnResume(func(restored, input *voiceMemosState) {
			messages := MergeMessages(restored.Messages, input.Messages)
			*restored = *input
			restored.Messages = messages
		})
		a.wf, a.err = b.Compile(a.rt.Checkpointer)
	})
	return a.wf, a.err
}

func (a *VoiceMemosAgent) coordinator(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	if s.AttachmentID == "" {
		model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
		if err != nil {
			return nil, err
		}
		produced, err := newReactor(model, a.coordinatorTools(s), s.CoordinatorPrompt, a.rt.Logger).Run(ctx, s.Messages)
		if err != nil {
			return nil, err
		}
		s.Messages = MergeMessages(s.Messages, produced)
		if len(produced) > 0 {
			a.rt.progress(ctx, s.AgentID, produced[len(produced)-1].Content)
		}
		return &graph.Command{Goto: graph.End}, nil
	}

	a.rt.progress(ctx, s.AgentID, "Analyzing audio...")

	attachment, err := a.rt.Store.GetAttachment(ctx, s.Schema, s.AttachmentID)
	if err != nil {
		return nil, err
	}
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, s.AudioLanguageModel)
	if err != nil {
		return nil, err
	}

	req := model.Request([]provider.Message{
		provider.SystemMessage(s.CoordinatorPrompt),
		{
			Role: provider.RoleHuman,
			Parts: []provider.ContentPart{
				{Type: "text", Text: s.Query},
				{Type: "input_audio", Audio: &provider.AudioInput{
					Data:   base64.StdEncoding.EncodeToString(attachment.RawContent),
					Format: s.AudioFormat,
				}},
			},
		},
	})
	req.Modalities = []string{"text"}

	resp, err := model.Client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	s.Transcription = resp.Content
	s.Messages = MergeMessages(s.Messages, []provider.Message{
		provider.AssistantMessage(fmt.Sprintf("Transcription: '%s'", resp.Content), "coordinator"),
	})

	a.rt.progress(ctx, s.AgentID, resp.Content)
	return &graph.Command{Goto: a.afterTranscription}, nil
}

func (a *VoiceMemosAgent) planner(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Planning how to reply...")

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	var plan ExecutionPlan
	callStructured(ctx, model, "solution_plan", []provider.Message{
		provider.SystemMessage(s.PlannerPrompt),
		provider.HumanMessage(fmt.Sprintf("User instructions: %s\n\nAudio transcription: %s", s.Query, s.Transcription)),
	}, &plan, a.rt.Logger)

	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	s.ExecutionPlan = &plan
	s.Messages = MergeMessages(s.Messages, []provider.Message{
		provider.AssistantMessage(string(raw), "planner"),
	})

	a.rt.progress(ctx, s.AgentID, plan.Thought)
	return &graph.Command{Goto: "supervisor"}, nil
}

func (a *VoiceMemosAgent) supervisor(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	if s.StructuredReport != nil {
		return &graph.Command{Goto: graph.End}, nil
	}
	return routeToWorker(ctx, a.rt, s.Schema, s.AgentID, s.SupervisorPrompt,
		workerNames(memoWorkers), lastInteraction(s.Messages), &s.Next)
}

func (a *VoiceMemosAgent) contentAnalyst(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Analysing transcription content...")

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}
	produced, err := newReactor(model, a.analystTools(s), s.AnalystPrompt, a.rt.Logger).Run(ctx, s.Messages)
	if err != nil {
		return nil, err
	}
	s.Messages = MergeMessages(s.Messages, produced)

	if len(produced) > 0 {
		a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Content analysis complete: %s", produced[len(produced)-1].Content))
	}
	return &graph.Command{Goto: "supervisor"}, nil
}

func (a *VoiceMemosAgent) reporter(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Generating structured report...")

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	analysis := ""
	if len(s.Messages) > 0 {
		analysis = s.Messages[len(s.Messages)-1].Content
	}

	var report AudioAnalysisReport
	callStructured(ctx, model, "audio_analysis_report", []provider.Message{
		provider.SystemMessage(s.ReporterPrompt),
		provider.HumanMessage(fmt.Sprintf("<content_analysis>%s</content_analysis>", analysis)),
	}, &report, a.rt.Logger)
	s.StructuredReport = &report

	a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Structured report generated: %s...", report.MainTopic))
	return &graph.Command{Goto: "supervisor"}, nil
}

func (a *VoiceMemosAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*voiceMemosState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}

	probe := &voiceMemosState{AgentID: req.AgentID, Schema: schema}
	coordinatorDefs := a.coordinatorTools(probe).Definitions()
	analystDefs := a.analystTools(probe).Definitions()

	vars := baseVars(map[string]any{
		"SUPERVISED_AGENTS":                   strings.Join(workerNames(memoWorkers), ", "),
		"SUPERVISED_AGENT_CONFIGURATION":      workerConfiguration(memoWorkers),
		"COORDINATOR_TOOLS":                   toolNames(coordinatorDefs),
		"COORDINATOR_TOOLS_CONFIGURATION":     toolConfiguration(coordinatorDefs),
		"CONTENT_ANALYST_TOOLS":               toolNames(analystDefs),
		"CONTENT_ANALYST_TOOLS_CONFIGURATION": toolConfiguration(analystDefs),
		"HAS_AUDIO_ATTACHMENT":                req.AttachmentID != "",
	})

	s := &voiceMemosState{
		AgentID:            req.AgentID,
		Schema:             schema,
		AttachmentID:       req.AttachmentID,
		AudioFormat:        settings["audio_format"],
		AudioLanguageModel: settings["audio_language_model"],
		Query:              req.MessageContent,
		Messages:           []provider.Message{provider.HumanMessage(req.MessageContent)},
	}
	for key, dst := range map[string]*string{
		"coordinator_system_prompt":     &s.CoordinatorPrompt,
		"planner_system_prompt":         &s.PlannerPrompt,
		"supervisor_system_prompt":      &s.SupervisorPrompt,
		"content_analyst_system_prompt": &s.AnalystPrompt,
		"reporter_system_prompt":        &s.ReporterPrompt,
	} {
		rendered, err := renderPrompt(settings, key, vars)
		if err != nil {
			return nil, err
		}
		*dst = rendered
	}
	return s, nil
}

func (a *VoiceMemosAgent) formatResponse(s *voiceMemosState) (string, map[string]any) {
	content := ""
	if len(s.Messages) > 0 {
		content = s.Messages[len(s.Messages)-1].Content
	}
	return content, map[string]any{
		"agent_id":             s.AgentID,
		"attachment_id":        s.AttachmentID,
		"audio_format":         s.AudioFormat,
		"audio_language_model": s.AudioLanguageModel,
		"structured_report":    s.StructuredReport,
		"query":                s.Query,
		"transcription":        s.Transcription,
		"execution_plan":       s.ExecutionPlan,
	}
}

func (a *VoiceMemosAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
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

// AzureEntraIdVoiceMemosAgent is a VoiceMemosAgent whose coordinator can
// produce calendar attachments and whose content analyst resolves people
// named in the memo against the organization's directory.
type AzureEntraIdVoiceMemosAgent struct {
	*VoiceMemosAgent
}

// NewAzureEntraIdVoiceMemosAgent creates an AzureEntraIdVoiceMemosAgent.
func NewAzureEntraIdVoiceMemosAgent(rt *Runtime) *AzureEntraIdVoiceMemosAgent {
	a := &AzureEntraIdVoiceMemosAgent{VoiceMemosAgent: NewVoiceMemosAgent(rt)}
	a.coordinatorTools = func(s *voiceMemosState) *tools.Registry {
		registry := tools.NewRegistry(rt.Logger)
		registry.Register(tools.ICalTool(rt.Store, s.Schema, rt.BaseURL))
		registry.Register(tools.WebSearchTool(rt.Tavily))
		registry.Register(tools.CrawlTool(rt.Tavily))
		return registry
	}
	a.analystTools = func(*voiceMemosState) *tools.Registry {
		registry := tools.NewRegistry(rt.Logger)
		registry.Register(tools.PersonSearchTool(rt.Directory))
		registry.Register(tools.PersonDetailsTool(rt.Directory))
		return registry
	}
	return a
}

// FastVoiceMemosAgent trades the planner and supervisor loop for a two node
// graph: transcribe, then produce the structured report in a single analyst
// pass.
type FastVoiceMemosAgent struct {
	*VoiceMemosAgent
}

// NewFastVoiceMemosAgent creates a FastVoiceMemosAgent.
func NewFastVoiceMemosAgent(rt *Runtime) *FastVoiceMemosAgent {
	a := &FastVoiceMemosAgent{VoiceMemosAgent: NewVoiceMemosAgent(rt)}
	a.afterTranscription = "content_analyst"
	a.addNodes = func(b *graph.Builder[voiceMemosState]) {
		b.AddNode("coordinator", a.coordinator)
		b.AddNode("content_analyst", a.fastContentAnalyst)
	}
	return a
}

// fastContentAnalyst runs the analysis and formats the structured report in
// the same node, then ends the turn.
func (a *FastVoiceMemosAgent) fastContentAnalyst(ctx context.Context, s *voiceMemosState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Analysing transcription content...")

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}
	produced, err := newReactor(model, a.analystTools(s), s.AnalystPrompt, a.rt.Logger).Run(ctx, s.Messages)
	if err != nil {
		return nil, err
	}
	s.Messages = MergeMessages(s.Messages, produced)

	var report AudioAnalysisReport
	callStructured(ctx, model, "audio_analysis_report",
		append([]provider.Message{provider.SystemMessage(s.AnalystPrompt)}, s.Messages...),
		&report, a.rt.Logger)
	s.StructuredReport = &report

	if len(produced) > 0 {
		a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Content analysis complete: %s", produced[len(produced)-1].Content))
	}
	return &graph.Command{Goto: graph.End}, nil
}

func (a *FastVoiceMemosAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*voiceMemosState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}

	vars := baseVars(map[string]any{
		"COORDINATOR_TOOLS":                   "",
		"COORDINATOR_TOOLS_CONFIGURATION":     "",
		"CONTENT_ANALYST_TOOLS":               "",
		"CONTENT_ANALYST_TOOLS_CONFIGURATION": "",
		"HAS_AUDIO_ATTACHMENT":                req.AttachmentID != "",
	})

	s := &voiceMemosState{
		AgentID:            req.AgentID,
		Schema:             schema,
		AttachmentID:       req.AttachmentID,
		AudioFormat:        settings["audio_format"],
		AudioLanguageModel: settings["audio_language_model"],
		Query:              req.MessageContent,
		Messages:           []provider.Message{provider.HumanMessage(req.MessageContent)},
	}
	for key, dst := range map[string]*string{
		"coordinator_system_prompt":     &s.CoordinatorPrompt,
		"content_analyst_system_prompt": &s.AnalystPrompt,
	} {
		rendered, err := renderPrompt(settings, key, vars)
		if err != nil {
			return nil, err
		}
		*dst = rendered
	}
	return s, nil
}

func (a *FastVoiceMemosAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
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
