package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/nidhogg/agentlab/internal/provider"
)

const execTimeout = 60 * time.Second

// BashTool runs a shell command and returns its combined output. Non-zero
// exit codes are reported in the output together with whatever the command
// printed.
func BashTool() (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "bash_tool",
			Description: "Execute a bash command and return its stdout and stderr. Use for file inspection, text processing, and system queries.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cmd": map[string]any{
						"type":        "string",
						"description": "The bash command to execute",
					},
				},
				"required": []string{"cmd"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			Cmd string `json:"cmd"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		return runCommand(ctx, "bash", "-c", params.Cmd)
	}
}

// PythonTool evaluates a python snippet with the system interpreter.
func PythonTool() (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "python_repl_tool",
			Description: "Execute python code and return what it prints. Use print() to surface results.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{
						"type":        "string",
						"description": "The python code to execute",
					},
				},
				"required": []string{"code"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		out, err := runCommand(ctx, "python3", "-c", params.Code)
		if err != nil {
			return "", err
		}
		if out == "" {
			return "Executed successfully, no output. Add print() statements to see results.", nil
		}
		return out, nil
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := buf.String()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", execTimeout)
	}
	if err != nil {
		if out != "" {
			return fmt.Sprintf("%s\nexit error: %v", out, err), nil
		}
		return "", err
	}
	return out, nil
}
