package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
)

func testDef(name string) provider.Tool {
	return provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:       name,
			Parameters: map[string]any{"type": "object"},
		},
	}
}

func TestExecuteUnknownToolReturnsText(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	out := r.Execute(context.Background(), "ghost", "{}")
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("got %q, want unknown tool text", out)
	}
}

func TestExecuteFailureBecomesOutput(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(testDef("broken"), func(_ context.Context, _ string) (string, error) {
		return "", errors.New("connection refused")
	})
	out := r.Execute(context.Background(), "broken", "{}")
	if !strings.Contains(out, "Error executing broken") || !strings.Contains(out, "connection refused") {
		t.Errorf("got %q, want failure text with cause", out)
	}
}

func TestExecuteRedactsSecrets(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Redact("sk-verysecret")
	r.Register(testDef("leaky"), func(_ context.Context, _ string) (string, error) {
		return "", errors.New("401 unauthorized: key sk-verysecret rejected")
	})
	out := r.Execute(context.Background(), "leaky", "{}")
	if strings.Contains(out, "sk-verysecret") {
		t.Fatalf("secret leaked in %q", out)
	}
	if !strings.Contains(out, "[redacted]") {
		t.Errorf("got %q, want redaction marker", out)
	}
}

func TestBashTool(t *testing.T) {
	def, handler := BashTool()
	if def.Function.Name != "bash_tool" {
		t.Fatalf("name %q", def.Function.Name)
	}
	out, err := handler(context.Background(), `{"cmd":"echo hello"}`)
	if err != nil {
		t.Fatalf("bash: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

func TestBashToolReportsExitFailure(t *testing.T) {
	_, handler := BashTool()
	out, err := handler(context.Background(), `{"cmd":"ls /definitely/not/here"}`)
	if err != nil && out != "" {
		t.Fatalf("failure with output should be returned as text, got err %v", err)
	}
	if err == nil && !strings.Contains(out, "exit error") {
		t.Errorf("got %q, want exit error text", out)
	}
}
