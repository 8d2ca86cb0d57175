package agents

import "fmt"

// AgentTypes are the variant names agents can be created with.
var AgentTypes = []string{
	"adaptive_rag",
	"coordinator_planner_supervisor",
	"react_rag",
	"test_echo",
	"vision_document",
	"voice_memos",
	"azure_entra_id_voice_memos",
	"fast_voice_memos",
}

// Registry maps agent type names to their variant implementations. The set
// is closed; unknown types are rejected at agent creation time.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds every variant against the shared runtime.
func NewRegistry(rt *Runtime) *Registry {
	return &Registry{agents: map[string]Agent{
		"adaptive_rag":                   NewAdaptiveRagAgent(rt),
		"coordinator_planner_supervisor": NewCoordinatorPlannerSupervisorAgent(rt),
		"react_rag":                      NewReactRagAgent(rt),
		"test_echo":                      NewEchoAgent(rt),
		"vision_document":                NewVisionDocumentAgent(rt),
		"voice_memos":                    NewVoiceMemosAgent(rt),
		"azure_entra_id_voice_memos":     NewAzureEntraIdVoiceMemosAgent(rt),
		"fast_voice_memos":               NewFastVoiceMemosAgent(rt),
	}}
}

// Get returns the variant registered under agentType.
func (r *Registry) Get(agentType string) (Agent, error) {
	agent, ok := r.agents[agentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type %q", agentType)
	}
	return agent, nil
}
