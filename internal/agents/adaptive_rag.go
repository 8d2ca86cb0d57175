package agents

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/provision"
	"github.com/nidhogg/agentlab/internal/rag"
)

// Grade threshold: once the step budget shrinks to this, the retry loop
// stops regardless of the answer grade.
const ragStepFloor = 10

type adaptiveRagState struct {
	AgentID        string             `json:"agent_id"`
	Schema         string             `json:"schema"`
	Query          string             `json:"query"`
	CollectionName string             `json:"collection_name"`
	Generation     string             `json:"generation"`
	Connection     string             `json:"connection"`
	Documents      []rag.Document     `json:"documents"`
	Messages       []provider.Message `json:"messages"`
	RemainingSteps int                `json:"remaining_steps"`

	ExecutionPrompt       string `json:"execution_system_prompt"`
	QueryRewriterPrompt   string `json:"query_rewriter_system_prompt"`
	AnswerGraderPrompt    string `json:"answer_grader_system_prompt"`
	RetrievalGraderPrompt string `json:"retrieval_grader_system_prompt"`
}

func (s *adaptiveRagState) SetRemainingSteps(n int) { s.RemainingSteps = n }

// AdaptiveRagAgent retrieves, grades and generates in a bounded retry loop:
// when the answer grader judges the generation incomplete, the query is
// rewritten and retrieval runs again until the grade is 'yes' or the step
// budget runs low.
type AdaptiveRagAgent struct {
	rt *Runtime

	once sync.Once
	wf   *graph.Workflow[adaptiveRagState]
	err  error
}

// NewAdaptiveRagAgent creates an AdaptiveRagAgent.
func NewAdaptiveRagAgent(rt *Runtime) *AdaptiveRagAgent {
	return &AdaptiveRagAgent{rt: rt}
}

func (a *AdaptiveRagAgent) CreateDefaultSettings(ctx context.Context, agentID, schema string) error {
	if err := seedPromptSettings(ctx, a.rt, agentID, schema, map[string]string{
		"execution_system_prompt":        "adaptive_rag/execution_system_prompt",
		"query_rewriter_system_prompt":   "adaptive_rag/query_rewriter_system_prompt",
		"answer_grader_system_prompt":    "adaptive_rag/answer_grader_system_prompt",
		"retrieval_grader_system_prompt": "adaptive_rag/retrieval_grader_system_prompt",
	}); err != nil {
		return err
	}
	return a.rt.Store.CreateAgentSetting(ctx, schema, agentID, "collection_name", "knowledge_base")
}

func (a *AdaptiveRagAgent) workflow() (*graph.Workflow[adaptiveRagState], error) {
	a.once.Do(func() {
		b := graph.NewBuilder[adaptiveRagState]("adaptive_rag")
		b.AddNode("retrieve", a.retrieve)
		b.AddNode("grade_documents", a.gradeDocuments)
		b.AddNode("generate", a.generate)
		b.AddNode("transform_query", a.transformQuery)
		b.AddEdge(graph.Start, "retrieve")
		b.AddEdge("retrieve", "grade_documents")
		b.AddEdge("grade_documents", "generate")
		b.AddEdge("transform_query", "retrieve")
		b.AddConditionalEdge("generate", a.gradeGeneration)
		b.OnResume(func(restored, input *adaptiveRagState) {
			restored.Query = input.Query
			restored.CollectionName = input.CollectionName
			restored.ExecutionPrompt = input.ExecutionPrompt
			restored.QueryRewriterPrompt = input.QueryRewriterPrompt
			restored.AnswerGraderPrompt = input.AnswerGraderPrompt
			restored.RetrievalGraderPrompt = input.RetrievalGraderPrompt
			restored.Messages = MergeMessages(restored.Messages, input.Messages)
		})
		a.wf, a.err = b.Compile(a.rt.Checkpointer)
	})
	return a.wf, a.err
}

func (a *AdaptiveRagAgent) retrieve(ctx context.Context, s *adaptiveRagState) (*graph.Command, error) {
	embedder, err := a.rt.Provisioner.EmbeddingsModel(ctx, s.Schema, s.AgentID)
	if err != nil {
		return nil, err
	}

	a.rt.progress(ctx, s.AgentID, "Retrieving documents...")
	docs, err := a.rt.Documents.Search(ctx, embedder, s.Schema, s.CollectionName, s.Query, 3)
	if err != nil {
		return nil, err
	}
	s.Documents = docs
	return nil, nil
}

func (a *AdaptiveRagAgent) gradeDocuments(ctx context.Context, s *adaptiveRagState) (*graph.Command, error) {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Grading documents relevance to query '%s'...", s.Query))

	filtered := s.Documents[:0]
	for _, doc := range s.Documents {
		var grade binaryGrade
		ok := callStructured(ctx, model, "grade_documents", []provider.Message{
			provider.SystemMessage(s.RetrievalGraderPrompt),
			provider.HumanMessage(fmt.Sprintf("<document>%s</document>\n<query>%s</query>", doc.PageContent, s.Query)),
		}, &grade, a.rt.Logger)
		if ok && grade.BinaryScore == "yes" {
			filtered = append(filtered, doc)
		}
	}

	a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Filtered out %d documents.", len(s.Documents)-len(filtered)))
	s.Documents = filtered
	return nil, nil
}

func (a *AdaptiveRagAgent) generate(ctx context.Context, s *adaptiveRagState) (*graph.Command, error) {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	context := rag.JoinContent(s.Documents, "\n---\n")
	if len(s.Messages) > 5 {
		summary, err := a.summarizeHistory(ctx, model, s.Messages)
		if err != nil {
			return nil, err
		}
		context += "\n\nSummary previous messages:" + summary
	} else if len(s.Messages) > 0 {
		context += fmt.Sprintf("\n\nPrevious messages:%v", messagesData(s.Messages))
	}

	a.rt.progress(ctx, s.AgentID, "Generating response...")

	var answer generatedAnswer
	ok := callStructured(ctx, model, "generate_answer", []provider.Message{
		provider.SystemMessage(s.ExecutionPrompt),
		provider.HumanMessage(fmt.Sprintf("<query>%s</query>\n<context>%s</context>", s.Query, context)),
	}, &answer, a.rt.Logger)
	if !ok {
		answer = generatedAnswer{}
	}

	s.Generation = answer.Generation
	s.Connection = answer.Connection
	s.Messages = MergeMessages(s.Messages, []provider.Message{
		thoughtChain(s.Query, answer.Generation, answer.Connection),
	})

	a.rt.progress(ctx, s.AgentID, answer.Generation)
	return nil, nil
}

// summarizeHistory condenses a long message history so it fits the
// generation context.
func (a *AdaptiveRagAgent) summarizeHistory(ctx context.Context, model *provision.Model, messages []provider.Message) (string, error) {
	const tokenLimit = 10240
	prompt := fmt.Sprintf(
		"Summarize the text delimited by <context></context> using at most %d tokens.\n<context>%v</context>",
		tokenLimit, messagesData(messages))
	resp, err := model.Client.Chat(ctx, model.Request([]provider.Message{provider.HumanMessage(prompt)}))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *AdaptiveRagAgent) gradeGeneration(ctx context.Context, s *adaptiveRagState) string {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		a.rt.Logger.Warn("answer grader unavailable", zap.Error(err))
		return "transform_query"
	}

	var grade binaryGrade
	ok := callStructured(ctx, model, "grade_answer", []provider.Message{
		provider.SystemMessage(s.AnswerGraderPrompt),
		provider.HumanMessage(fmt.Sprintf("<query>%s</query>\n<answer>%s</answer>", s.Query, s.Generation)),
	}, &grade, a.rt.Logger)

	// Only an explicit 'yes' completes the turn directly; any other grade,
	// including an unparseable one, retries until the step budget runs low.
	if (ok && grade.BinaryScore == "yes") || s.RemainingSteps <= ragStepFloor {
		return graph.End
	}
	return "transform_query"
}

func (a *AdaptiveRagAgent) transformQuery(ctx context.Context, s *adaptiveRagState) (*graph.Command, error) {
	model, err := a.rt.Provisioner.ChatModel(ctx, s.Schema, s.AgentID, "")
	if err != nil {
		return nil, err
	}

	a.rt.progress(ctx, s.AgentID, "Transforming query for better semantic document match...")

	resp, err := model.Client.Chat(ctx, model.Request([]provider.Message{
		provider.SystemMessage(s.QueryRewriterPrompt),
		provider.HumanMessage(fmt.Sprintf(
			"Here is the initial query: <query>%s</query> \n Formulate an improved query.", s.Query)),
	}))
	if err != nil {
		return nil, err
	}

	s.Messages = MergeMessages(s.Messages, []provider.Message{
		thoughtChain(s.Query,
			"Transformed query: "+resp.Content,
			"Transformed query can help generating a better answer."),
	})
	s.Query = resp.Content

	a.rt.progress(ctx, s.AgentID, fmt.Sprintf("Transformed query: `%s`", resp.Content))
	return nil, nil
}

func (a *AdaptiveRagAgent) getInputParams(ctx context.Context, req *MessageRequest, schema string) (*adaptiveRagState, error) {
	settings, err := a.rt.settingsMap(ctx, schema, req.AgentID)
	if err != nil {
		return nil, err
	}
	vars := baseVars(nil)

	s := &adaptiveRagState{
		AgentID:        req.AgentID,
		Schema:         schema,
		Query:          req.MessageContent,
		CollectionName: settings["collection_name"],
	}
	for key, dst := range map[string]*string{
		"execution_system_prompt":        &s.ExecutionPrompt,
		"query_rewriter_system_prompt":   &s.QueryRewriterPrompt,
		"answer_grader_system_prompt":    &s.AnswerGraderPrompt,
		"retrieval_grader_system_prompt": &s.RetrievalGraderPrompt,
	} {
		rendered, err := renderPrompt(settings, key, vars)
		if err != nil {
			return nil, err
		}
		*dst = rendered
	}
	return s, nil
}

func (a *AdaptiveRagAgent) formatResponse(s *adaptiveRagState) (string, map[string]any) {
	docs := make([]string, 0, len(s.Documents))
	for _, d := range s.Documents {
		docs = append(docs, d.PageContent)
	}
	return s.Generation, map[string]any{
		"agent_id":        s.AgentID,
		"query":           s.Query,
		"collection_name": s.CollectionName,
		"generation":      s.Generation,
		"connection":      s.Connection,
		"documents":       docs,
	}
}

func (a *AdaptiveRagAgent) ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error) {
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
