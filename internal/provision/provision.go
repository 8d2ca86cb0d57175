// Package provision resolves an agent's configured language model into a
// ready chat client: agent row to language model to integration, credentials
// from the secret store, client picked by integration type.
package provision

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/embedding"
	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
)

// Integration types with first-class clients. Anything else is treated as an
// OpenAI-compatible endpoint, which covers Ollama and most self-hosted
// gateways.
const (
	IntegrationOpenAI    = "openai_api_v1"
	IntegrationAnthropic = "anthropic_api_v1"
	IntegrationXAI       = "xai_api_v1"
)

// Model is a provisioned chat client plus the per-model settings stored for
// the agent's language model.
type Model struct {
	Client      provider.ChatModel
	Tag         string
	Temperature *float64
	MaxTokens   int
}

// Request starts a chat request pre-filled with the model tag and settings.
func (m *Model) Request(messages []provider.Message) *provider.ChatRequest {
	req := &provider.ChatRequest{
		Model:     m.Tag,
		Messages:  messages,
		MaxTokens: m.MaxTokens,
	}
	if m.Temperature != nil {
		req.Temperature = *m.Temperature
	}
	return req
}

// Provisioner builds model clients on demand. Clients are cheap HTTP wrappers
// so nothing is cached between calls; credentials are re-read every time and
// rotation takes effect immediately.
type Provisioner struct {
	store   *store.Store
	secrets secrets.Store
	logger  *zap.Logger
}

// New creates a Provisioner.
func New(st *store.Store, sec secrets.Store, logger *zap.Logger) *Provisioner {
	return &Provisioner{store: st, secrets: sec, logger: logger}
}

// resolve walks agent row to language model to integration and reads the
// integration's credentials from the secret store.
func (p *Provisioner) resolve(ctx context.Context, schema, agentID string) (*store.LanguageModel, *store.Integration, *secrets.Credentials, error) {
	agent, err := p.store.GetAgent(ctx, schema, agentID)
	if err != nil {
		return nil, nil, nil, err
	}
	lm, err := p.store.GetLanguageModel(ctx, schema, agent.LanguageModelID)
	if err != nil {
		return nil, nil, nil, err
	}
	integ, err := p.store.GetIntegration(ctx, schema, lm.IntegrationID)
	if err != nil {
		return nil, nil, nil, err
	}
	creds, err := p.secrets.IntegrationCredentials(ctx, integ.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("credentials for integration %s: %w", integ.ID, err)
	}
	return lm, integ, creds, nil
}

// ChatModel provisions the chat model configured for an agent. A non-empty
// tagOverride selects a different model tag on the same integration, which
// sub-agents use for specialized work.
func (p *Provisioner) ChatModel(ctx context.Context, schema, agentID, tagOverride string) (*Model, error) {
	lm, integ, creds, err := p.resolve(ctx, schema, agentID)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Client: clientFor(integ.IntegrationType, creds, p.logger),
		Tag:    lm.LanguageModelTag,
	}
	if tagOverride != "" {
		model.Tag = tagOverride
	}

	settings, err := p.store.GetLanguageModelSettings(ctx, schema, lm.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range settings {
		switch s.SettingKey {
		case "temperature":
			if v, err := strconv.ParseFloat(s.SettingValue, 64); err == nil {
				model.Temperature = &v
			}
		case "max_tokens":
			if v, err := strconv.Atoi(s.SettingValue); err == nil {
				model.MaxTokens = v
			}
		}
	}

	p.logger.Debug("model provisioned",
		zap.String("agent_id", agentID),
		zap.String("integration_type", integ.IntegrationType),
		zap.String("tag", model.Tag))
	return model, nil
}

// BrowserChatModel provisions the agent's model tuned for browser
// automation. OpenAI-compatible endpoints run at temperature 1; the stored
// per-model settings do not apply to browser sessions.
func (p *Provisioner) BrowserChatModel(ctx context.Context, schema, agentID, tagOverride string) (*Model, error) {
	lm, integ, creds, err := p.resolve(ctx, schema, agentID)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Client: clientFor(integ.IntegrationType, creds, p.logger),
		Tag:    lm.LanguageModelTag,
	}
	if tagOverride != "" {
		model.Tag = tagOverride
	}
	switch integ.IntegrationType {
	case IntegrationOpenAI, IntegrationXAI:
		temp := 1.0
		model.Temperature = &temp
	}

	p.logger.Debug("browser model provisioned",
		zap.String("agent_id", agentID),
		zap.String("integration_type", integ.IntegrationType),
		zap.String("tag", model.Tag))
	return model, nil
}

// EmbeddingsModel provisions an embeddings client on the agent's
// integration. The embeddings model tag comes from the language model's
// settings under the "embeddings" key.
func (p *Provisioner) EmbeddingsModel(ctx context.Context, schema, agentID string) (embedding.Provider, error) {
	lm, _, creds, err := p.resolve(ctx, schema, agentID)
	if err != nil {
		return nil, err
	}

	tag := ""
	settings, err := p.store.GetLanguageModelSettings(ctx, schema, lm.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range settings {
		if s.SettingKey == "embeddings" {
			tag = s.SettingValue
		}
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: embeddings setting for language model %s", store.ErrNotFound, lm.ID)
	}
	return embedding.NewAPIProvider(creds.APIEndpoint, creds.APIKey, tag), nil
}

func clientFor(integrationType string, creds *secrets.Credentials, logger *zap.Logger) provider.ChatModel {
	cfg := provider.Config{Endpoint: creds.APIEndpoint, APIKey: creds.APIKey}
	switch integrationType {
	case IntegrationAnthropic:
		return provider.NewAnthropicClient(cfg, logger)
	case IntegrationOpenAI, IntegrationXAI:
		return provider.NewOpenAIClient(cfg, logger)
	default:
		return provider.NewOpenAIClient(cfg, logger)
	}
}
