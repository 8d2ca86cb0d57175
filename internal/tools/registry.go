// Package tools implements the callable tools agents expose to their models:
// shell and python execution, web search and crawling, browser automation,
// calendar attachments, and directory lookups.
//
// Tool failures are part of the conversation, not of the control flow. A
// model that calls a broken tool gets the failure back as tool output and
// decides what to do next; the surrounding workflow keeps running.
package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
)

// Handler executes a tool call and returns the result as a string.
type Handler func(ctx context.Context, args string) (string, error)

// Registry holds available tools and their handlers.
type Registry struct {
	defs     []provider.Tool
	handlers map[string]Handler
	secrets  []string
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a tool definition and its handler.
func (r *Registry) Register(def provider.Tool, handler Handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Function.Name] = handler
}

// Redact registers secret values that must never surface in tool output.
func (r *Registry) Redact(values ...string) {
	for _, v := range values {
		if v != "" {
			r.secrets = append(r.secrets, v)
		}
	}
}

// Definitions returns all tool definitions for the model request.
func (r *Registry) Definitions() []provider.Tool {
	return r.defs
}

// Execute runs a tool by name with the given JSON arguments. Any failure,
// including an unknown tool name, comes back as tool output text so the
// model can react to it.
func (r *Registry) Execute(ctx context.Context, name, args string) string {
	h, ok := r.handlers[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	out, err := h(ctx, args)
	if err != nil {
		r.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return r.scrub(fmt.Sprintf("Error executing %s: %v", name, err))
	}
	return r.scrub(out)
}

func (r *Registry) scrub(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "[redacted]")
	}
	return s
}
