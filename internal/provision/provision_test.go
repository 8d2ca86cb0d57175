package provision

import (
	"context"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
)

type fakeSecrets struct {
	creds map[string]*secrets.Credentials
}

func (f *fakeSecrets) IntegrationCredentials(_ context.Context, integrationID string) (*secrets.Credentials, error) {
	c, ok := f.creds[integrationID]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return c, nil
}

func TestClientForDispatch(t *testing.T) {
	creds := &secrets.Credentials{APIEndpoint: "https://example.test/v1", APIKey: "k"}
	logger := zap.NewNop()

	if _, ok := clientFor(IntegrationAnthropic, creds, logger).(*provider.AnthropicClient); !ok {
		t.Error("anthropic_api_v1 should provision the Anthropic client")
	}
	for _, typ := range []string{IntegrationOpenAI, IntegrationXAI, "ollama_local"} {
		if _, ok := clientFor(typ, creds, logger).(*provider.OpenAIClient); !ok {
			t.Errorf("%s should provision the OpenAI-compatible client", typ)
		}
	}
}

func TestModelRequestCarriesSettings(t *testing.T) {
	temp := 0.2
	m := &Model{Tag: "gpt-4o", Temperature: &temp, MaxTokens: 512}
	req := m.Request([]provider.Message{provider.HumanMessage("hi")})
	if req.Model != "gpt-4o" {
		t.Errorf("model %q, want %q", req.Model, "gpt-4o")
	}
	if req.Temperature != 0.2 {
		t.Errorf("temperature %v, want 0.2", req.Temperature)
	}
	if req.MaxTokens != 512 {
		t.Errorf("max tokens %d, want 512", req.MaxTokens)
	}
}

func TestChatModelResolvesChain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("provision_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}

	st, err := store.New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.EnsureSchema(ctx, "acme"); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	integ := &store.Integration{IntegrationType: IntegrationAnthropic}
	if err := st.CreateIntegration(ctx, "acme", integ); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	lm := &store.LanguageModel{IntegrationID: integ.ID, LanguageModelTag: "claude-sonnet-4"}
	if err := st.CreateLanguageModel(ctx, "acme", lm); err != nil {
		t.Fatalf("create language model: %v", err)
	}
	if err := st.UpsertLanguageModelSetting(ctx, "acme", lm.ID, "temperature", "0.3"); err != nil {
		t.Fatalf("upsert setting: %v", err)
	}
	agent := &store.Agent{
		AgentName:       "scout",
		AgentType:       "test_echo",
		LanguageModelID: lm.ID,
	}
	if err := st.CreateAgent(ctx, "acme", agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	sec := &fakeSecrets{creds: map[string]*secrets.Credentials{
		integ.ID: {APIEndpoint: "https://api.anthropic.com/v1", APIKey: "sk-test"},
	}}
	p := New(st, sec, zap.NewNop())

	model, err := p.ChatModel(ctx, "acme", agent.ID, "")
	if err != nil {
		t.Fatalf("chat model: %v", err)
	}
	if model.Tag != "claude-sonnet-4" {
		t.Errorf("tag %q, want %q", model.Tag, "claude-sonnet-4")
	}
	if model.Temperature == nil || *model.Temperature != 0.3 {
		t.Errorf("temperature %v, want 0.3", model.Temperature)
	}
	if _, ok := model.Client.(*provider.AnthropicClient); !ok {
		t.Error("expected Anthropic client for anthropic_api_v1")
	}

	over, err := p.ChatModel(ctx, "acme", agent.ID, "claude-haiku")
	if err != nil {
		t.Fatalf("chat model with override: %v", err)
	}
	if over.Tag != "claude-haiku" {
		t.Errorf("override tag %q, want %q", over.Tag, "claude-haiku")
	}
}
