package store

import (
	"context"
	"errors"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func startStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("store_test"),
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
	st, err := New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(st.Close)

	if err := st.EnsureSchema(ctx, "tenant_a"); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return st
}

// seedAgent provisions the integration -> language model -> agent chain the
// foreign keys require and returns the agent id.
func seedAgent(t *testing.T, st *Store) string {
	t.Helper()
	ctx := context.Background()

	in := &Integration{ID: "5f0c3a9e-0000-4000-8000-000000000001", IntegrationType: "openai_api_v1"}
	if err := st.CreateIntegration(ctx, "tenant_a", in); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	lm := &LanguageModel{
		ID:               "5f0c3a9e-0000-4000-8000-000000000002",
		IntegrationID:    in.ID,
		LanguageModelTag: "gpt-4o",
	}
	if err := st.CreateLanguageModel(ctx, "tenant_a", lm); err != nil {
		t.Fatalf("create language model: %v", err)
	}
	a := &Agent{
		ID:              "5f0c3a9e-0000-4000-8000-000000000003",
		AgentName:       "helper",
		AgentType:       "react_rag",
		LanguageModelID: lm.ID,
		IsActive:        true,
	}
	if err := st.CreateAgent(ctx, "tenant_a", a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a.ID
}

func TestSchemaValidation(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()

	_, err := st.ListAgents(ctx, `bad;schema`)
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("got %v, want ErrInvalidField", err)
	}
}

func TestAgentLifecycle(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()
	id := seedAgent(t, st)

	a, err := st.GetAgent(ctx, "tenant_a", id)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if a.AgentName != "helper" || !a.IsActive {
		t.Errorf("agent = %+v, want active helper", a)
	}

	a.AgentSummary = "answers questions"
	if err := st.UpdateAgent(ctx, "tenant_a", a); err != nil {
		t.Fatalf("update agent: %v", err)
	}

	if err := st.DeactivateAgent(ctx, "tenant_a", id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := st.DeactivateAgent(ctx, "tenant_a", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second deactivate: got %v, want ErrNotFound", err)
	}
	if err := st.UpdateAgent(ctx, "tenant_a", a); !errors.Is(err, ErrNotFound) {
		t.Errorf("update after deactivate: got %v, want ErrNotFound", err)
	}
}

func TestAgentSettings(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()
	id := seedAgent(t, st)

	if err := st.CreateAgentSetting(ctx, "tenant_a", id, "execution_prompt", "v1"); err != nil {
		t.Fatalf("create setting: %v", err)
	}
	// Seeding defaults twice must not clobber an edited value.
	if err := st.CreateAgentSetting(ctx, "tenant_a", id, "execution_prompt", "default"); err != nil {
		t.Fatalf("re-create setting: %v", err)
	}
	got, err := st.GetAgentSetting(ctx, "tenant_a", id, "execution_prompt")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if got != "v1" {
		t.Errorf("setting = %q, want %q", got, "v1")
	}

	if err := st.UpdateAgentSetting(ctx, "tenant_a", id, "execution_prompt", "v2"); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	if err := st.UpdateAgentSetting(ctx, "tenant_a", id, "absent", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update absent setting: got %v, want ErrNotFound", err)
	}
}

func TestLanguageModelSettingsUpsert(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()
	seedAgent(t, st)
	lmID := "5f0c3a9e-0000-4000-8000-000000000002"

	if err := st.UpsertLanguageModelSetting(ctx, "tenant_a", lmID, "embeddings", "text-embedding-3-small"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertLanguageModelSetting(ctx, "tenant_a", lmID, "embeddings", "text-embedding-3-large"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	rows, err := st.GetLanguageModelSettings(ctx, "tenant_a", lmID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if len(rows) != 1 || rows[0].SettingValue != "text-embedding-3-large" {
		t.Errorf("settings = %+v, want one upserted row", rows)
	}
}

func TestLanguageModelUpdateAndDelete(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()
	seedAgent(t, st)
	lmID := "5f0c3a9e-0000-4000-8000-000000000002"

	lm, err := st.GetLanguageModel(ctx, "tenant_a", lmID)
	if err != nil {
		t.Fatalf("get language model: %v", err)
	}
	lm.LanguageModelTag = "gpt-4o-mini"
	if err := st.UpdateLanguageModel(ctx, "tenant_a", lm); err != nil {
		t.Fatalf("update language model: %v", err)
	}
	got, err := st.GetLanguageModel(ctx, "tenant_a", lmID)
	if err != nil {
		t.Fatalf("re-get: %v", err)
	}
	if got.LanguageModelTag != "gpt-4o-mini" {
		t.Errorf("tag = %q, want %q", got.LanguageModelTag, "gpt-4o-mini")
	}

	// The agent row still references the model, so the delete must fail.
	if err := st.DeleteLanguageModel(ctx, "tenant_a", lmID); err == nil {
		t.Error("delete succeeded despite referencing agent")
	}
}

func TestMessagesAndAttachments(t *testing.T) {
	st := startStore(t)
	ctx := context.Background()
	id := seedAgent(t, st)

	att := &Attachment{
		ID:            "5f0c3a9e-0000-4000-8000-000000000010",
		FileName:      "memo.mp3",
		RawContent:    []byte("audio"),
		ParsedContent: "transcript",
	}
	if err := st.CreateAttachment(ctx, "tenant_a", att); err != nil {
		t.Fatalf("create attachment: %v", err)
	}

	human := &Message{
		ID:             "5f0c3a9e-0000-4000-8000-000000000011",
		MessageRole:    "human",
		MessageContent: "listen to this",
		AgentID:        id,
		AttachmentID:   &att.ID,
	}
	if err := st.CreateMessage(ctx, "tenant_a", human); err != nil {
		t.Fatalf("create human message: %v", err)
	}
	assistant := &Message{
		ID:             "5f0c3a9e-0000-4000-8000-000000000012",
		MessageRole:    "assistant",
		MessageContent: "summary",
		ResponseData:   map[string]any{"transcription": "hello"},
		AgentID:        id,
		RepliesTo:      &human.ID,
	}
	if err := st.CreateMessage(ctx, "tenant_a", assistant); err != nil {
		t.Fatalf("create assistant message: %v", err)
	}

	list, err := st.ListMessages(ctx, "tenant_a", id)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("messages = %d, want 2", len(list))
	}

	got, err := st.GetMessage(ctx, "tenant_a", assistant.ID)
	if err != nil {
		t.Fatalf("get assistant: %v", err)
	}
	if got.ResponseData["transcription"] != "hello" {
		t.Errorf("response_data = %+v", got.ResponseData)
	}

	// Deleting the human message takes the reply with it.
	if err := st.DeleteMessage(ctx, "tenant_a", human.ID); err != nil {
		t.Fatalf("delete human: %v", err)
	}
	if _, err := st.GetMessage(ctx, "tenant_a", assistant.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("reply survived parent delete: %v", err)
	}

	fetched, err := st.GetAttachment(ctx, "tenant_a", att.ID)
	if err != nil {
		t.Fatalf("get attachment: %v", err)
	}
	if string(fetched.RawContent) != "audio" || fetched.ParsedContent != "transcript" {
		t.Errorf("attachment = %+v", fetched)
	}
	if err := st.DeleteAttachment(ctx, "tenant_a", att.ID); err != nil {
		t.Fatalf("delete attachment: %v", err)
	}
	if _, err := st.GetAttachment(ctx, "tenant_a", att.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
