package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/provision"
	"github.com/nidhogg/agentlab/internal/tools"
)

const maxBrowserActions = 12

const browserStepPrompt = `You control a web browser to carry out the user's instruction.
After every action you receive the rendered page. Decide the single next
action: navigate to a URL, click an element by CSS selector, type text into
an element by CSS selector, or answer when the instruction is fulfilled.
Answer with what you found, not with navigation narration.`

type browserAction struct {
	Action   string `json:"action" description:"The next browser action." enum:"navigate|click|type|answer"`
	URL      string `json:"url,omitempty" description:"Absolute URL, for navigate."`
	Selector string `json:"selector,omitempty" description:"CSS selector, for click and type."`
	Text     string `json:"text,omitempty" description:"Text to type, for type."`
	Answer   string `json:"answer,omitempty" description:"Final result of the instruction, for answer."`
}

// browserSession is the slice of tools.Session the step loop drives.
type browserSession interface {
	Navigate(ctx context.Context, url string) (string, error)
	Click(ctx context.Context, selector string) (string, error)
	Type(ctx context.Context, selector, text string) (string, error)
}

// runBrowserSteps lets the model drive the session one action at a time
// until it answers or the action budget runs out. Action failures go back to
// the model as observations so it can correct course.
func runBrowserSteps(ctx context.Context, session browserSession, model *provision.Model, instruction string, logger *zap.Logger) (string, error) {
	messages := []provider.Message{
		provider.SystemMessage(browserStepPrompt),
		provider.HumanMessage(instruction),
	}

	for step := 0; step < maxBrowserActions; step++ {
		var action browserAction
		if !callStructured(ctx, model, "browser_action", messages, &action, logger) {
			return "", fmt.Errorf("browser step %d: no usable action", step+1)
		}

		var observation string
		var err error
		switch action.Action {
		case "answer":
			return action.Answer, nil
		case "navigate":
			observation, err = session.Navigate(ctx, action.URL)
		case "click":
			observation, err = session.Click(ctx, action.Selector)
		case "type":
			observation, err = session.Type(ctx, action.Selector, action.Text)
		default:
			err = fmt.Errorf("unknown action %q", action.Action)
		}
		if err != nil {
			observation = fmt.Sprintf("Error: %v", err)
		}

		taken, _ := json.Marshal(action)
		messages = append(messages,
			provider.AssistantMessage(string(taken), ""),
			provider.HumanMessage(observation))
		logger.Debug("browser action",
			zap.Int("step", step+1),
			zap.String("action", action.Action))
	}
	return "", fmt.Errorf("instruction not fulfilled within %d actions", maxBrowserActions)
}

// browserAgentTool exposes instruction-driven browsing: the input is a
// natural-language task and the agent's browser model plans the actions.
func browserAgentTool(rt *Runtime, s *supervisorState) (provider.Tool, tools.Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "browser_tool",
			Description: "Use this tool to interact with web browsers. Input should be a natural language description of what you want to do with the browser, such as 'Go to google.com and search for browser-use', or 'Navigate to Reddit and find the top post about AI'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"instruction": map[string]any{
						"type":        "string",
						"description": "The instruction to use browser.",
					},
				},
				"required": []string{"instruction"},
			},
		},
	}
	handler := func(ctx context.Context, args string) (string, error) {
		var params struct {
			Instruction string `json:"instruction"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}

		model, err := rt.Provisioner.BrowserChatModel(ctx, s.Schema, s.AgentID, "")
		if err != nil {
			return "", err
		}

		rt.progress(ctx, s.AgentID, "Starting headless browser tool...")
		session, err := rt.Browser.NewSession(ctx)
		if err != nil {
			return "", err
		}
		defer session.Close()

		result, err := runBrowserSteps(ctx, session, model, params.Instruction, rt.Logger)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(map[string]string{"result_content": result})
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		return string(out), nil
	}
	return def, handler
}
