// Package agents implements the agent variants and their shared execution
// contract. Every variant seeds its default settings at creation time, builds
// its entry state from persisted settings plus the inbound message, and runs
// a compiled workflow graph keyed by the agent id so interrupted turns resume
// where they stopped.
package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/config"
	"github.com/nidhogg/agentlab/internal/embedding"
	"github.com/nidhogg/agentlab/internal/graph"
	"github.com/nidhogg/agentlab/internal/notify"
	"github.com/nidhogg/agentlab/internal/provision"
	"github.com/nidhogg/agentlab/internal/rag"
	"github.com/nidhogg/agentlab/internal/store"
	"github.com/nidhogg/agentlab/internal/tools"
)

// Message roles accepted on the inbound API.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const currentTimeFormat = "Mon Jan 02 2006 15:04:05 -0700"

// MessageRequest is one inbound conversational message routed to an agent.
type MessageRequest struct {
	AgentID        string `json:"agent_id"`
	MessageRole    string `json:"message_role"`
	MessageContent string `json:"message_content"`
	AttachmentID   string `json:"attachment_id,omitempty"`
}

// Reply is the assistant message an agent produces for one request.
type Reply struct {
	MessageRole    string         `json:"message_role"`
	MessageContent string         `json:"message_content"`
	ResponseData   map[string]any `json:"response_data,omitempty"`
	AgentID        string         `json:"agent_id"`
}

// Agent is the contract every variant implements. Instances are stateless
// and shared across requests; per-turn state lives in the workflow state.
type Agent interface {
	// CreateDefaultSettings idempotently seeds the setting keys the
	// variant's prompts require.
	CreateDefaultSettings(ctx context.Context, agentID, schema string) error
	// ProcessMessage runs one conversational turn to completion.
	ProcessMessage(ctx context.Context, req *MessageRequest, schema string) (*Reply, error)
}

// Store is the slice of the persistence layer the variants touch.
// *store.Store satisfies it.
type Store interface {
	GetAgentSettings(ctx context.Context, schema, agentID string) ([]store.AgentSetting, error)
	CreateAgentSetting(ctx context.Context, schema, agentID, key, value string) error
	GetAttachment(ctx context.Context, schema, id string) (*store.Attachment, error)
	CreateAttachment(ctx context.Context, schema string, a *store.Attachment) error
}

// ModelProvider provisions chat and embeddings clients for an agent.
// *provision.Provisioner satisfies it.
type ModelProvider interface {
	ChatModel(ctx context.Context, schema, agentID, tagOverride string) (*provision.Model, error)
	BrowserChatModel(ctx context.Context, schema, agentID, tagOverride string) (*provision.Model, error)
	EmbeddingsModel(ctx context.Context, schema, agentID string) (embedding.Provider, error)
}

// DocumentSearcher queries a vector collection.
// *rag.DocumentRepository satisfies it.
type DocumentSearcher interface {
	Search(ctx context.Context, embedder embedding.Provider, schema, collection, query string, size int) ([]rag.Document, error)
}

// Runtime bundles the shared infrastructure agent variants run against.
type Runtime struct {
	Store        Store
	Provisioner  ModelProvider
	Documents    DocumentSearcher
	Notifier     *notify.Notifier
	Checkpointer graph.Checkpointer
	Tavily       *tools.TavilyClient
	Browser      *tools.Browser
	Directory    *tools.GraphClient
	BaseURL      string
	Logger       *zap.Logger
}

// NewRuntime assembles a Runtime from wired infrastructure.
func NewRuntime(
	st Store,
	prov ModelProvider,
	docs DocumentSearcher,
	notifier *notify.Notifier,
	cp graph.Checkpointer,
	cfg *config.Config,
	logger *zap.Logger,
) *Runtime {
	return &Runtime{
		Store:        st,
		Provisioner:  prov,
		Documents:    docs,
		Notifier:     notifier,
		Checkpointer: cp,
		Tavily:       tools.NewTavilyClient(cfg.Tools.Tavily.Endpoint, cfg.Tools.Tavily.APIKey, logger),
		Browser:      tools.NewBrowser(cfg.Tools.CDPURL, logger),
		Directory:    tools.NewGraphClient(cfg.Tools.Graph.TenantID, cfg.Tools.Graph.ClientID, cfg.Tools.Graph.ClientSecret, logger),
		BaseURL:      cfg.Server.BaseURL,
		Logger:       logger,
	}
}

// progress publishes an in-flight status update. Notification failures are
// logged and swallowed; they must never break the turn producing them.
func (rt *Runtime) progress(ctx context.Context, agentID, content string) {
	rt.publish(ctx, &notify.TaskProgress{
		AgentID:        agentID,
		Status:         notify.StatusInProgress,
		MessageContent: content,
	})
}

func (rt *Runtime) completed(ctx context.Context, agentID, content string, data map[string]any) {
	rt.publish(ctx, &notify.TaskProgress{
		AgentID:        agentID,
		Status:         notify.StatusCompleted,
		MessageContent: content,
		ResponseData:   data,
	})
}

func (rt *Runtime) publish(ctx context.Context, tp *notify.TaskProgress) {
	if rt.Notifier == nil {
		return
	}
	if err := rt.Notifier.PublishUpdate(ctx, tp); err != nil {
		rt.Logger.Warn("publish task progress",
			zap.String("agent_id", tp.AgentID), zap.Error(err))
	}
}

func currentTime() string {
	return time.Now().Format(currentTimeFormat)
}
