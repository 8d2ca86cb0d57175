package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/agents"
	"github.com/nidhogg/agentlab/internal/notify"
	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
)

type memStore struct {
	mu             sync.Mutex
	agents         map[string]*store.Agent
	agentSettings  map[string]map[string]string
	integrations   map[string]*store.Integration
	languageModels map[string]*store.LanguageModel
	lmSettings     map[string]map[string]string
	messages       map[string]*store.Message
	attachments    map[string]*store.Attachment
}

func newMemStore() *memStore {
	return &memStore{
		agents:         map[string]*store.Agent{},
		agentSettings:  map[string]map[string]string{},
		integrations:   map[string]*store.Integration{},
		languageModels: map[string]*store.LanguageModel{},
		lmSettings:     map[string]map[string]string{},
		messages:       map[string]*store.Message{},
		attachments:    map[string]*store.Attachment{},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func (m *memStore) CreateAgent(_ context.Context, _ string, a *store.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.CreatedAt = time.Now()
	m.agents[a.ID] = &cp
	return nil
}

func (m *memStore) GetAgent(_ context.Context, _ string, id string) (*store.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, notFound("agent", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAgents(_ context.Context, _ string) ([]*store.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Agent
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateAgent(_ context.Context, _ string, a *store.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.agents[a.ID]
	if !ok || !cur.IsActive {
		return notFound("agent", a.ID)
	}
	cur.AgentName = a.AgentName
	cur.AgentSummary = a.AgentSummary
	cur.LanguageModelID = a.LanguageModelID
	return nil
}

func (m *memStore) DeactivateAgent(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || !a.IsActive {
		return notFound("agent", id)
	}
	a.IsActive = false
	return nil
}

func (m *memStore) GetAgentSettings(_ context.Context, _ string, agentID string) ([]store.AgentSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.AgentSetting
	for k, v := range m.agentSettings[agentID] {
		out = append(out, store.AgentSetting{AgentID: agentID, SettingKey: k, SettingValue: v})
	}
	return out, nil
}

func (m *memStore) UpdateAgentSetting(_ context.Context, _ string, agentID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	settings, ok := m.agentSettings[agentID]
	if !ok {
		return notFound("setting", key)
	}
	if _, ok := settings[key]; !ok {
		return notFound("setting", key)
	}
	settings[key] = value
	return nil
}

func (m *memStore) CreateIntegration(_ context.Context, _ string, in *store.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.integrations[in.ID] = &cp
	return nil
}

func (m *memStore) GetIntegration(_ context.Context, _ string, id string) (*store.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.integrations[id]
	if !ok {
		return nil, notFound("integration", id)
	}
	cp := *in
	return &cp, nil
}

func (m *memStore) ListIntegrations(_ context.Context, _ string) ([]*store.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Integration
	for _, in := range m.integrations {
		cp := *in
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteIntegration(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integrations[id]; !ok {
		return notFound("integration", id)
	}
	delete(m.integrations, id)
	return nil
}

func (m *memStore) CreateLanguageModel(_ context.Context, _ string, lm *store.LanguageModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *lm
	m.languageModels[lm.ID] = &cp
	return nil
}

func (m *memStore) GetLanguageModel(_ context.Context, _ string, id string) (*store.LanguageModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, ok := m.languageModels[id]
	if !ok {
		return nil, notFound("language model", id)
	}
	cp := *lm
	return &cp, nil
}

func (m *memStore) ListLanguageModels(_ context.Context, _ string) ([]*store.LanguageModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.LanguageModel
	for _, lm := range m.languageModels {
		cp := *lm
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateLanguageModel(_ context.Context, _ string, lm *store.LanguageModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.languageModels[lm.ID]
	if !ok {
		return notFound("language model", lm.ID)
	}
	cur.IntegrationID = lm.IntegrationID
	cur.LanguageModelTag = lm.LanguageModelTag
	return nil
}

func (m *memStore) DeleteLanguageModel(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.languageModels[id]; !ok {
		return notFound("language model", id)
	}
	delete(m.languageModels, id)
	delete(m.lmSettings, id)
	return nil
}

func (m *memStore) GetLanguageModelSettings(_ context.Context, _ string, id string) ([]store.LanguageModelSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.LanguageModelSetting
	for k, v := range m.lmSettings[id] {
		out = append(out, store.LanguageModelSetting{LanguageModelID: id, SettingKey: k, SettingValue: v})
	}
	return out, nil
}

func (m *memStore) UpsertLanguageModelSetting(_ context.Context, _ string, id, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lmSettings[id] == nil {
		m.lmSettings[id] = map[string]string{}
	}
	m.lmSettings[id][key] = value
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, _ string, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.CreatedAt = time.Now()
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memStore) GetMessage(_ context.Context, _ string, id string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, notFound("message", id)
	}
	cp := *msg
	return &cp, nil
}

func (m *memStore) ListMessages(_ context.Context, _ string, agentID string) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Message
	for _, msg := range m.messages {
		if msg.AgentID == agentID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) DeleteMessage(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[id]; !ok {
		return notFound("message", id)
	}
	delete(m.messages, id)
	for mid, msg := range m.messages {
		if msg.RepliesTo != nil && *msg.RepliesTo == id {
			delete(m.messages, mid)
		}
	}
	return nil
}

func (m *memStore) CreateAttachment(_ context.Context, _ string, a *store.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attachments[a.ID] = &cp
	return nil
}

func (m *memStore) GetAttachment(_ context.Context, _ string, id string) (*store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attachments[id]
	if !ok {
		return nil, notFound("attachment", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) DeleteAttachment(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attachments[id]; !ok {
		return notFound("attachment", id)
	}
	delete(m.attachments, id)
	return nil
}

type memSecrets struct {
	mu      sync.Mutex
	saved   map[string]*secrets.Credentials
	saveErr error
}

func (m *memSecrets) SaveIntegrationCredentials(_ context.Context, id string, creds *secrets.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = map[string]*secrets.Credentials{}
	}
	m.saved[id] = creds
	return nil
}

func (m *memSecrets) DeleteIntegrationCredentials(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, id)
	return nil
}

type stubAgent struct {
	reply    *agents.Reply
	err      error
	seeded   []string
	seedInto *memStore
}

func (s *stubAgent) CreateDefaultSettings(_ context.Context, agentID, _ string) error {
	s.seeded = append(s.seeded, agentID)
	if s.seedInto != nil {
		s.seedInto.mu.Lock()
		s.seedInto.agentSettings[agentID] = map[string]string{"execution_prompt": "You are helpful."}
		s.seedInto.mu.Unlock()
	}
	return nil
}

func (s *stubAgent) ProcessMessage(_ context.Context, req *agents.MessageRequest, _ string) (*agents.Reply, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.reply != nil {
		return s.reply, nil
	}
	return &agents.Reply{
		MessageRole:    agents.RoleAssistant,
		MessageContent: "echo: " + req.MessageContent,
		AgentID:        req.AgentID,
	}, nil
}

type stubCatalog struct {
	agent *stubAgent
}

func (c *stubCatalog) Get(agentType string) (agents.Agent, error) {
	if agentType != "test_echo" {
		return nil, fmt.Errorf("unknown agent type %q", agentType)
	}
	return c.agent, nil
}

type stubFeed struct {
	ch chan *notify.TaskProgress
}

func (f *stubFeed) Subscribe(ctx context.Context, agentID string) <-chan *notify.TaskProgress {
	out := make(chan *notify.TaskProgress, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case tp, ok := <-f.ch:
				if !ok {
					return
				}
				if tp.AgentID == agentID {
					out <- tp
				}
			}
		}
	}()
	return out
}

type testEnv struct {
	store   *memStore
	secrets *memSecrets
	agent   *stubAgent
	feed    *stubFeed
	handler http.Handler
}

func newTestEnv() *testEnv {
	st := newMemStore()
	sec := &memSecrets{}
	ag := &stubAgent{seedInto: st}
	feed := &stubFeed{ch: make(chan *notify.TaskProgress, 16)}
	h := NewHandler(st, sec, &stubCatalog{agent: ag}, feed, zap.NewNop())
	return &testEnv{store: st, secrets: sec, agent: ag, feed: feed, handler: h.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) createAgent(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/agents", map[string]string{
		"agent_name":        "helper",
		"agent_type":        "test_echo",
		"language_model_id": "lm-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent: got status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var a store.Agent
	decodeBody(t, rec, &a)
	return a.ID
}

func TestCreateAgentSeedsDefaultSettings(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	if len(env.agent.seeded) != 1 || env.agent.seeded[0] != id {
		t.Fatalf("seeded agents = %v, want [%s]", env.agent.seeded, id)
	}

	rec := env.do(t, http.MethodGet, "/api/agents/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}
	var expanded struct {
		AgentName string            `json:"agent_name"`
		Settings  map[string]string `json:"ag_settings"`
	}
	decodeBody(t, rec, &expanded)
	if expanded.AgentName != "helper" {
		t.Errorf("agent_name = %q, want %q", expanded.AgentName, "helper")
	}
	if expanded.Settings["execution_prompt"] == "" {
		t.Errorf("ag_settings missing execution_prompt: %v", expanded.Settings)
	}
}

func TestCreateAgentUnknownTypeRejected(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPost, "/api/agents", map[string]string{
		"agent_name":        "x",
		"agent_type":        "no_such_variant",
		"language_model_id": "lm-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/agents/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteAgentDeactivates(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	rec := env.do(t, http.MethodDelete, "/api/agents/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = env.do(t, http.MethodGet, "/api/agents/"+id, nil)
	var expanded struct {
		IsActive bool `json:"is_active"`
	}
	decodeBody(t, rec, &expanded)
	if expanded.IsActive {
		t.Error("agent still active after delete")
	}

	rec = env.do(t, http.MethodDelete, "/api/agents/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUpdateAgentSettingReturnsExpanded(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	rec := env.do(t, http.MethodPut, "/api/agents/"+id+"/settings/execution_prompt",
		map[string]string{"setting_value": "Answer tersely."})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var expanded struct {
		Settings map[string]string `json:"ag_settings"`
	}
	decodeBody(t, rec, &expanded)
	if got := expanded.Settings["execution_prompt"]; got != "Answer tersely." {
		t.Errorf("setting = %q, want %q", got, "Answer tersely.")
	}
}

func TestPostMessagePersistsReply(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	rec := env.do(t, http.MethodPost, "/api/messages", map[string]string{
		"agent_id":        id,
		"message_content": "hello",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var reply store.Message
	decodeBody(t, rec, &reply)
	if reply.MessageRole != agents.RoleAssistant {
		t.Errorf("message_role = %q, want %q", reply.MessageRole, agents.RoleAssistant)
	}
	if reply.MessageContent != "echo: hello" {
		t.Errorf("message_content = %q, want %q", reply.MessageContent, "echo: hello")
	}
	if reply.RepliesTo == nil {
		t.Fatal("replies_to not set on assistant message")
	}

	inbound, err := env.store.GetMessage(context.Background(), "public", *reply.RepliesTo)
	if err != nil {
		t.Fatalf("inbound message not persisted: %v", err)
	}
	if inbound.MessageRole != agents.RoleHuman || inbound.MessageContent != "hello" {
		t.Errorf("inbound = %q %q, want human hello", inbound.MessageRole, inbound.MessageContent)
	}
}

func TestPostMessageRejectsAssistantRole(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	rec := env.do(t, http.MethodPost, "/api/messages", map[string]string{
		"agent_id":        id,
		"message_role":    agents.RoleAssistant,
		"message_content": "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPostMessageDeactivatedAgentRejected(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)
	env.do(t, http.MethodDelete, "/api/agents/"+id, nil)

	rec := env.do(t, http.MethodPost, "/api/messages", map[string]string{
		"agent_id":        id,
		"message_content": "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetMessageToleratesMissingAttachment(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	attID := "gone"
	msg := &store.Message{
		ID:             "m-1",
		MessageRole:    agents.RoleHuman,
		MessageContent: "see attachment",
		AgentID:        id,
		AttachmentID:   &attID,
	}
	if err := env.store.CreateMessage(context.Background(), "public", msg); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/messages/m-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var expanded struct {
		Attachment *attachmentInfo `json:"attachment"`
	}
	decodeBody(t, rec, &expanded)
	if expanded.Attachment != nil {
		t.Errorf("attachment = %+v, want nil for pruned attachment", expanded.Attachment)
	}
}

func TestDeleteMessageCascadesReplies(t *testing.T) {
	env := newTestEnv()
	id := env.createAgent(t)

	rec := env.do(t, http.MethodPost, "/api/messages", map[string]string{
		"agent_id":        id,
		"message_content": "hello",
	})
	var reply store.Message
	decodeBody(t, rec, &reply)

	rec = env.do(t, http.MethodDelete, "/api/messages/"+*reply.RepliesTo, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = env.do(t, http.MethodGet, "/api/messages/"+reply.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("reply survived cascade: got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	env := newTestEnv()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "memo.mp3")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("audio-bytes"))
	mw.WriteField("parsed_content", "transcript placeholder")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: got status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var info attachmentInfo
	decodeBody(t, rec, &info)
	if info.FileName != "memo.mp3" {
		t.Errorf("file_name = %q, want %q", info.FileName, "memo.mp3")
	}

	rec = env.do(t, http.MethodGet, "/api/attachments/"+info.ID+"/download", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: got status %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "audio-bytes" {
		t.Errorf("body = %q, want %q", got, "audio-bytes")
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="memo.mp3"`) {
		t.Errorf("Content-Disposition = %q, want filename", cd)
	}
}

func TestCreateIntegrationStoresCredentialsAside(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/integrations", map[string]string{
		"integration_type": "openai_api_v1",
		"api_endpoint":     "https://api.openai.com/v1",
		"api_key":          "sk-test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "sk-test") {
		t.Error("api_key leaked into the integration response")
	}
	var in store.Integration
	decodeBody(t, rec, &in)

	creds := env.secrets.saved[in.ID]
	if creds == nil {
		t.Fatal("credentials not handed to the secret store")
	}
	if creds.APIKey != "sk-test" || creds.APIEndpoint != "https://api.openai.com/v1" {
		t.Errorf("saved creds = %+v", creds)
	}
}

func TestCreateIntegrationRollsBackOnSecretFailure(t *testing.T) {
	env := newTestEnv()
	env.secrets.saveErr = fmt.Errorf("vault sealed")

	rec := env.do(t, http.MethodPost, "/api/integrations", map[string]string{
		"integration_type": "openai_api_v1",
		"api_endpoint":     "https://api.openai.com/v1",
		"api_key":          "sk-test",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if n := len(env.store.integrations); n != 0 {
		t.Errorf("integration rows after rollback = %d, want 0", n)
	}
}

func TestLanguageModelLifecycle(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/integrations", map[string]string{
		"integration_type": "openai_api_v1",
		"api_endpoint":     "https://api.openai.com/v1",
		"api_key":          "sk-test",
	})
	var in store.Integration
	decodeBody(t, rec, &in)

	rec = env.do(t, http.MethodPost, "/api/language-models", map[string]string{
		"integration_id":     in.ID,
		"language_model_tag": "gpt-4o",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var lm store.LanguageModel
	decodeBody(t, rec, &lm)

	rec = env.do(t, http.MethodPut, "/api/language-models/"+lm.ID+"/settings/embeddings",
		map[string]string{"setting_value": "text-embedding-3-small"})
	if rec.Code != http.StatusOK {
		t.Fatalf("setting: got status %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var expanded struct {
		Settings map[string]string `json:"lm_settings"`
	}
	decodeBody(t, rec, &expanded)
	if got := expanded.Settings["embeddings"]; got != "text-embedding-3-small" {
		t.Errorf("embeddings setting = %q, want %q", got, "text-embedding-3-small")
	}

	rec = env.do(t, http.MethodPut, "/api/language-models/"+lm.ID,
		map[string]string{"language_model_tag": "gpt-4o-mini"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got status %d, want %d", rec.Code, http.StatusOK)
	}
	var updated store.LanguageModel
	decodeBody(t, rec, &updated)
	if updated.LanguageModelTag != "gpt-4o-mini" {
		t.Errorf("tag = %q, want %q", updated.LanguageModelTag, "gpt-4o-mini")
	}

	rec = env.do(t, http.MethodDelete, "/api/language-models/"+lm.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got status %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestCreateLanguageModelUnknownIntegration(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPost, "/api/language-models", map[string]string{
		"integration_id":     "missing",
		"language_model_tag": "gpt-4o",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTaskUpdatesStreamsUntilTerminal(t *testing.T) {
	env := newTestEnv()
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/task_updates/agent-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	env.feed.ch <- &notify.TaskProgress{AgentID: "other", Status: notify.StatusInProgress}
	env.feed.ch <- &notify.TaskProgress{AgentID: "agent-1", Status: notify.StatusInProgress, MessageContent: "Analyzing..."}
	env.feed.ch <- &notify.TaskProgress{AgentID: "agent-1", Status: notify.StatusCompleted, MessageContent: "done"}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first notify.TaskProgress
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Status != notify.StatusInProgress || first.MessageContent != "Analyzing..." {
		t.Errorf("first update = %+v, want the in-progress event for agent-1", first)
	}

	var second notify.TaskProgress
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if second.Status != notify.StatusCompleted {
		t.Errorf("second status = %q, want %q", second.Status, notify.StatusCompleted)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected close after terminal status")
	}
}
