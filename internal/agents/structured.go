package agents

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/provision"
)

// callStructured makes one chat call constrained to out's schema and decodes
// the response into out. It returns false when the model's payload cannot be
// parsed; callers treat that as the negative branch of whatever decision was
// being made, never as a failure of the turn.
func callStructured(ctx context.Context, model *provision.Model, name string, messages []provider.Message, out any, logger *zap.Logger) bool {
	req := model.Request(messages)
	req.ResponseFormat = &provider.ResponseFormat{
		Name:   name,
		Schema: structSchema(out),
	}
	resp, err := model.Client.Chat(ctx, req)
	if err != nil {
		logger.Warn("structured call failed", zap.String("schema", name), zap.Error(err))
		return false
	}
	payload := strings.TrimSpace(resp.Content)
	if payload == "" {
		return false
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		logger.Warn("structured payload unparseable",
			zap.String("schema", name), zap.String("payload", payload), zap.Error(err))
		return false
	}
	return true
}

// Structured judgment and report types shared by the workflow variants.

type binaryGrade struct {
	BinaryScore string `json:"binary_score" description:"'yes' or 'no'"`
}

type generatedAnswer struct {
	Connection string `json:"connection" description:"A brief and solid argument connecting user query and generated answer."`
	Generation string `json:"generation" description:"A generated good answer to user query."`
}

type coordinatorRoute struct {
	Next      string `json:"next" description:"Next step to route to." enum:"planner|__end__"`
	Generated string `json:"generated,omitempty" description:"Empty if next is planner, a generated answer if next is __end__."`
}

type supervisorRoute struct {
	Next string `json:"next" description:"Worker to route to next, or __end__ when no worker is needed."`
}

// ExecutionStep is one unit of an execution plan.
type ExecutionStep struct {
	AgentName   string `json:"agent_name" description:"Agent responsible for handling the step"`
	Title       string `json:"title" description:"Title of the step"`
	Description string `json:"description" description:"Description of the step"`
}

// ExecutionPlan is produced by a planner node and consumed by a supervisor.
type ExecutionPlan struct {
	Thought string          `json:"thought" description:"Thought process used to create the plan"`
	Title   string          `json:"title" description:"Title of solution plan framed as an user intent"`
	Steps   []ExecutionStep `json:"steps" description:"List of execution steps"`
}

// AudioAnalysisReport is the structured summary a voice memo turn produces.
type AudioAnalysisReport struct {
	MainTopic       string `json:"main_topic" description:"The main subject of the transcription."`
	DiscussedPoints string `json:"discussed_points" description:"List of points discussed in the transcription."`
	DecisionsTaken  string `json:"decisions_taken" description:"List of decisions made during the transcription."`
	NextSteps       string `json:"next_steps" description:"Follow-ups."`
	ActionPoints    string `json:"action_points" description:"Tasks assigned and responsibilities."`
	NamedEntities   string `json:"named_entities" description:"List names of people and their corresponding organizations."`
}
