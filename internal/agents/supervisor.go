package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/tools"
)

// workerProfile describes one supervised worker for the routing prompts.
type workerProfile struct {
	Name       string
	Desc       string
	DescForLLM string
}

func workerNames(workers []workerProfile) []string {
	names := make([]string, 0, len(workers))
	for _, w := range workers {
		names = append(names, w.Name)
	}
	return names
}

// workerConfiguration renders the roster block the planner and supervisor
// prompts interpolate.
func workerConfiguration(workers []workerProfile) string {
	var sb strings.Builder
	for _, w := range workers {
		fmt.Fprintf(&sb, "- %s: %s %s\n", w.Name, w.Desc, w.DescForLLM)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var researchWorkers = []workerProfile{
	{
		Name:       "researcher",
		Desc:       "Responsible for searching and collecting relevant information, understanding user needs and conducting research analysis.",
		DescForLLM: "Outputs a Markdown response with findings. Does not do math or programming and cannot interact with web pages.",
	},
	{
		Name:       "coder",
		Desc:       "Responsible for code implementation, debugging and optimization, handling technical programming tasks.",
		DescForLLM: "Executes bash commands and python code to do calculations or data analysis.",
	},
	{
		Name:       "browser",
		Desc:       "Responsible for web browsing and interacting with web pages.",
		DescForLLM: "Visits URLs and extracts their readable content.",
	},
	{
		Name:       "reporter",
		Desc:       "Responsible for summarizing results from the other workers into the final answer.",
		DescForLLM: "Writes a professional report based on the result of each step.",
	},
}

type supervisorState struct {
	AgentID        string             `json:"agent_id"`
	Schema         string             `json:"schema"`
	Query          string             `json:"query"`
	Next           string             `json:"next"`
	CollectionName string             `json:"collection_name"`
	DeepSearchMode bool               `json:"deep_search_mode"`
	ExecutionPlan  *ExecutionPlan     `json:"execution_plan"`
	Messages       []provider.Message `json:"messages"`
	RemainingSteps int                `json:"remaining_steps"`

	CoordinatorPrompt string `json:"coordinator_system_prompt"`
	PlannerPrompt     string `json:"planner_system_prompt"`
	SupervisorPrompt  string `json:"supervisor_system_prompt"`
	ResearcherPrompt  string `json:"researcher_system_prompt"`
	CoderPrompt       string `json:"coder_system_prompt"`
	BrowserPrompt     string `json:"browser_system_prompt"`
	ReporterPrompt    string `json:"reporter_system_prompt"`
}

func (s *supervisorState) SetRemainingSteps(n int) { s.RemainingSteps = n }

// CoordinatorPlannerSupervisorAgent runs a team of workers under a routing
// loop: a coordinator either answers trivial queries directly or hands off to
// a planner, whose execution plan a supervisor drives step by step through
// the researcher, coder, browser and reporter workers until it routes to end.
type CoordinatorPlannerSupervisorAgent struct {
	rt *Runtime

	once sync.Once
	wf   *graph.Workflow[supervisorState]
	err  error
}

// NewCoordinatorPlannerSupervisorAgent creates a
// CoordinatorPlannerSupervisorAgent.
func NewCoordinatorPlannerSupervisorAgent(rt *Runtime) *CoordinatorPlannerSupervisorAgent {
	return &CoordinatorPlannerSupervisorAgent{rt: rt}
}

func (a *CoordinatorPlannerSupervisorAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	if err := seedPromptSettings(ctx, a.rt, agentID, schema, map[string]string{
		"coordinator_system_prompt": "coordinator_planner_supervisor/coordinator_system_prompt",
		"planner_system_prompt":     "coordinator_planner_supervisor/planner_system_prompt",
		"supervisor_system_prompt":  "coordinator_planner_supervisor/supervisor_system_prompt",
		"researcher_system_prompt":  "coordinator_planner_supervisor/researcher_system_prompt",
		"coder_system_prompt":       "coordinator_planner_supervisor/coder_system_prompt",
		"browser_system_prompt":     "coordinator_planner_supervisor/browser_system_prompt",
		"reporter_system_prompt":    "coordinator_planner_supervisor/reporter_system_prompt",
	}); err != nil {
		return err
	}
	if err := a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "collection_name", "knowledge_base"); err != nil {
		return err
	}
	return a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "deep_search_mode", "False")
}

func (a *CoordinatorPlannerSupervisorAgent) workflow() (*graph.Workflow[supervisorState], error) {
	a.once.Do(func() {
		b := graph.NewBuilder[supervisorState]("coordinator_planner_supervisor")
		b.AddNode("coordinator", a.coordinator)
		b.AddNode("planner", a.planner)
		b.AddNode("supervisor", a.supervisor)
		b.AddNode("researcher", a.researcher)
		b.AddNode("coder", a.coder)
		b.AddNode("browser", a.browser)
		b.AddNode("reporter", a.reporter)
		b.AddEdge(graph.Start, "coordinator")
		b.OnResume(mergeSupervisorInput)
		a.wf, a.err = b.Compile(a.rt.Checkpointer)
	})
	return a.wf, a.err
}

// mergeSupervisorInput refreshes a resumed thread with the new turn's query
// and re-rendered prompts while keeping the accumulated conversation and the
// previous execution plan.
func mergeSupervisorInput(restored, input *supervisorState) {
	messages := MergeMessages(restored.Messages, input.Messages)
	plan := restored.ExecutionPlan
	*restored = *input
	restored.Messages = messages
	restored.ExecutionPlan = plan
}

func (a *CoordinatorPlannerSupervisorAgent) coordinator(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Analyzing query: %s", s.Query))

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	var route coordinatorRoute
	ok := callStructured(ctx, model, "coordinator_router", []provider.Message{
		provider.SystemMessage(s.CoordinatorPrompt),
		provider.HumanMessage(s.Query),
	}, &route, a.rt.Logger)
	if !ok || route.Next != graph.End {
		return &graph.Command{Goto: "planner"}, nil
	}

	s.Messages = MergeMessages(s.Messages, []provider.Message{
		provider.AssistantMessage(route.Generated, ""),
	})
	return &graph.Command{Goto: graph.End}, nil
}

func (a *CoordinatorPlannerSupervisorAgent) planner(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Planning how to reply...")

	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	input := fmt.Sprintf("<query>%s</query>", s.Query)
	if s.DeepSearchMode {
		results, err := a.rt.Tavily.Search(ctx, s.Query, 5)
		if err != nil {
			return nil, fmt.Errorf("deep search: %w", err)
		}
		input += fmt.Sprintf("\n<search_results>%s</search_results>", results)
	}

	var plan ExecutionPlan
	callStructured(ctx, model, "solution_plan", []provider.Message{
		provider.SystemMessage(s.PlannerPrompt),
		provider.HumanMessage(input),
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

func (a *CoordinatorPlannerSupervisorAgent) supervisor(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	return routeToWorker(ctx, a.rt, s.Schema, s.AgentID, s.SupervisorPrompt,
		workerNames(researchWorkers), lastInteraction(s.Messages), &s.Next)
}

// routeToWorker asks the model which worker runs next. The answer must name
// one of the allowed workers; anything else, including an unparseable
// payload, ends the turn.
func routeToWorker(ctx context.Context, rt *Runtime, schema, agentID, prompt string, allowed []string, messages []provider.Message, next *string) (*graph.Command, error) {
	model, err := rt.Provisioner.ChatModel(ctx, schema, agentID, "")
	if err != nil {
		return nil, err
	}

	var route supervisorRoute
	ok := callStructured(ctx, model, "supervisor_router",
		append([]provider.Message{provider.SystemMessage(prompt)}, messages...),
		&route, rt.Logger)

	target := graph.End
	if ok {
		for _, name := range allowed {
			if route.Next == name {
				target = name
				break
			}
		}
		if target == graph.End && route.Next != graph.End {
			rt.Logger.Warn("supervisor routed outside the worker set",
				zap.String("agent_id", agentID), zap.String("next", route.Next))
		}
	}
	*next = target
	return &graph.Command{Goto: target}, nil
}

// runWorker executes one supervised worker as a tool-calling loop over the
// accumulated conversation and hands control back to the supervisor.
func runWorker(ctx context.Context, rt *Runtime, s *supervisorState, prompt string, registry *tools.Registry) (*graph.Command, error) {
	model, err := rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	produced, err := newReactor(model, registry, prompt, rt.Logger).Run(ctx, s.Messages)
	if err != nil {
		return nil, err
	}
	s.Messages = MergeMessages(s.Messages, produced)

	if len(produced) > 0 {
		rt.progress(ctx, s.AgentID, produced[len(produced)-1].Content)
	}
	return &graph.Command{Goto: "supervisor"}, nil
}

// knowledgeBaseTool consults the agent's vector collection with the plan's
// thought as the query.
func knowledgeBaseTool(rt *Runtime, s *supervisorState) (provider.Tool, tools.Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "research_knowledge_base",
			Description: "Consult the knowledge base. Use this to perform research on known knowledge bases.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
	handler := func(ctx context.Context, _ string) (string, error) {
		embedder, err := rt.Provisioner.EmbeddingsModel(ctx, s.Schema, s.AgentID)
		if err != nil {
			return "", err
		}
		query := s.Query
		if s.ExecutionPlan != nil {
			query = s.ExecutionPlan.Thought
		}
		docs, err := rt.Documents.Search(ctx, embedder, s.Schema, s.CollectionName, query, 3)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(docs))
		for _, d := range docs {
			parts = append(parts, d.PageContent)
		}
		return strings.Join(parts, "\n\n"), nil
	}
	return def, handler
}

func (a *CoordinatorPlannerSupervisorAgent) researcher(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Researching the topic...")

	registry := tools.NewRegistry(a.rt.Logger)
	if s.DeepSearchMode {
		registry.Register(tools.WebSearchTool(a.rt.Tavily))
		registry.Register(tools.CrawlTool(a.rt.Tavily))
	} else {
		registry.Register(knowledgeBaseTool(a.rt, s))
	}
	return runWorker(ctx, a.rt, s, s.ResearcherPrompt, registry)
}

func (a *CoordinatorPlannerSupervisorAgent) coder(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Generating code...")

	registry := tools.NewRegistry(a.rt.Logger)
	registry.Register(tools.BashTool())
	registry.Register(tools.PythonTool())
	return runWorker(ctx, a.rt, s, s.CoderPrompt, registry)
}

func (a *CoordinatorPlannerSupervisorAgent) browser(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Browsing the web for information...")

	registry := tools.NewRegistry(a.rt.Logger)
	registry.Register(browserAgentTool(a.rt, s))
	registry.Register(tools.BrowserTool(a.rt.Browser))
	return runWorker(ctx, a.rt, s, s.BrowserPrompt, registry)
}

func (a *CoordinatorPlannerSupervisorAgent) reporter(ctx context.Context, s *supervisorState) (*graph.Command, error) {
	a.rt.progress(ctx, s.AgentID, "Generating report...")
	return runWorker(ctx, a.rt, s, s.ReporterPrompt, tools.NewRegistry(a.rt.Logger))
}

func (a *CoordinatorPlannerSupervisorAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*supervisorState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}

	deepSearch := settings["deep_search_mode"] == "True"
	vars := baseVars(map[string]any{
		"DEEP_SEARCH_MODE":               deepSearch,
		"SUPERVISED_AGENTS":              strings.Join(workerNames(researchWorkers), ", "),
		"SUPERVISED_AGENT_CONFIGURATION": workerConfiguration(researchWorkers),
	})

	s := &supervisorState{
		AgentID:        req.AgentID,
		Schema:         schema,
		Query:          req.MessageContent,
		CollectionName: settings["collection_name"],
		DeepSearchMode: deepSearch,
		Messages:       []provider.Message{provider.HumanMessage(req.MessageContent)},
	}
	for key, dst := range map[string]*string{
		"coordinator_system_prompt": &s.CoordinatorPrompt,
		"planner_system_prompt":     &s.PlannerPrompt,
		"supervisor_system_prompt":  &s.SupervisorPrompt,
		"researcher_system_prompt":  &s.ResearcherPrompt,
		"coder_system_prompt":       &s.CoderPrompt,
		"browser_system_prompt":     &s.BrowserPrompt,
		"reporter_system_prompt":    &s.ReporterPrompt,
	} {
		rendered, err := renderPrompt(settings, key, vars)
		if err != nil {
			return nil, err
		}
		*dst = rendered
	}
	return s, nil
}

func (a *CoordinatorPlannerSupervisorAgent) formatResponse(s *supervisorState) (string, map[string]any) {
	content := ""
	if len(s.Messages) > 0 {
		content = s.Messages[len(s.Messages)-1].Content
	}
	return content, map[string]any{
		"agent_id":         s.AgentID,
		"query":            s.Query,
		"collection_name":  s.CollectionName,
		"deep_search_mode": s.DeepSearchMode,
		"execution_plan":   s.ExecutionPlan,
	}
}

func (a *CoordinatorPlannerSupervisorAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
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
