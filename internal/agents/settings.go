package agents

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/nidhogg/agentlab/internal/agents/prompts"
)

// settingsMap loads an agent's flat settings rows into a map.
func (rt *Runtime) settingsMap(ctx context.Context, schema, agentID string) (map[string]string, error) {
	settings, err := rt.Store.GetAgentSettings(ctx, schema, agentID)
	if err != nil {
		return nil, err
	}
	dict := make(map[string]string, len(settings))
	for _, s := range settings {
		dict[s.SettingKey] = s.SettingValue
	}
	return dict, nil
}

// renderPrompt renders the stored prompt template under key with the given
// variables. A missing key is fatal: prompts referenced by a workflow must
// have been seeded before first invocation.
func renderPrompt(settings map[string]string, key string, vars map[string]any) (string, error) {
	body, ok := settings[key]
	if !ok {
		return "", fmt.Errorf("agent setting %q is not defined", key)
	}
	tmpl, err := template.New(key).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse prompt template %q: %w", key, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render prompt template %q: %w", key, err)
	}
	return sb.String(), nil
}

// seedPromptSettings seeds the given setting keys from their default prompt
// resources. Seeding is idempotent; existing settings are left untouched.
func seedPromptSettings(ctx context.Context, rt *Runtime, agentID, schema string, keys map[string]string) error {
	for key, resource := range keys {
		body, err := prompts.Default(resource)
		if err != nil {
			return err
		}
		if err := rt.Store.CreateAgentSetting(ctx, schema, agentID, key, body); err != nil {
			return err
		}
	}
	return nil
}

// baseVars returns the template variables every prompt can reference. Extra
// pairs layer variant-specific variables on top.
func baseVars(extra map[string]any) map[string]any {
	vars := map[string]any{
		"CURRENT_TIME": currentTime(),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}
