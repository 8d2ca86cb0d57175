// Package api exposes the platform over HTTP: tenant-scoped CRUD for agents,
// integrations, language models, messages and attachments, plus a WebSocket
// bridge onto the task progress channel. Every request runs against the
// tenant schema named in the X-Tenant-Schema header, defaulting to "public".
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/agents"
	"github.com/nidhogg/agentlab/internal/notify"
	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
)

const tenantHeader = "X-Tenant-Schema"

// Store is the persistence surface the handlers touch. *store.Store
// satisfies it.
type Store interface {
	CreateAgent(ctx context.Context, schema string, a *store.Agent) error
	GetAgent(ctx context.Context, schema, id string) (*store.Agent, error)
	ListAgents(ctx context.Context, schema string) ([]*store.Agent, error)
	UpdateAgent(ctx context.Context, schema string, a *store.Agent) error
	DeactivateAgent(ctx context.Context, schema, id string) error
	GetAgentSettings(ctx context.Context, schema, agentID string) ([]store.AgentSetting, error)
	UpdateAgentSetting(ctx context.Context, schema, agentID, key, value string) error

	CreateIntegration(ctx context.Context, schema string, in *store.Integration) error
	GetIntegration(ctx context.Context, schema, id string) (*store.Integration, error)
	ListIntegrations(ctx context.Context, schema string) ([]*store.Integration, error)
	DeleteIntegration(ctx context.Context, schema, id string) error

	CreateLanguageModel(ctx context.Context, schema string, lm *store.LanguageModel) error
	GetLanguageModel(ctx context.Context, schema, id string) (*store.LanguageModel, error)
	ListLanguageModels(ctx context.Context, schema string) ([]*store.LanguageModel, error)
	UpdateLanguageModel(ctx context.Context, schema string, lm *store.LanguageModel) error
	DeleteLanguageModel(ctx context.Context, schema, id string) error
	GetLanguageModelSettings(ctx context.Context, schema, languageModelID string) ([]store.LanguageModelSetting, error)
	UpsertLanguageModelSetting(ctx context.Context, schema, languageModelID, key, value string) error

	CreateMessage(ctx context.Context, schema string, m *store.Message) error
	GetMessage(ctx context.Context, schema, id string) (*store.Message, error)
	ListMessages(ctx context.Context, schema, agentID string) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, schema, id string) error

	CreateAttachment(ctx context.Context, schema string, a *store.Attachment) error
	GetAttachment(ctx context.Context, schema, id string) (*store.Attachment, error)
	DeleteAttachment(ctx context.Context, schema, id string) error
}

// Catalog resolves an agent type to its variant implementation.
// *agents.Registry satisfies it.
type Catalog interface {
	Get(agentType string) (agents.Agent, error)
}

// ProgressFeed delivers task progress events for one agent. *notify.Notifier
// satisfies it.
type ProgressFeed interface {
	Subscribe(ctx context.Context, agentID string) <-chan *notify.TaskProgress
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store   Store
	secrets secrets.Writer
	catalog Catalog
	feed    ProgressFeed
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(st Store, sec secrets.Writer, catalog Catalog, feed ProgressFeed, logger *zap.Logger) *Handler {
	return &Handler{store: st, secrets: sec, catalog: catalog, feed: feed, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenantHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Put("/agents/{id}", h.updateAgent)
		r.Delete("/agents/{id}", h.deleteAgent)
		r.Put("/agents/{id}/settings/{key}", h.updateAgentSetting)
		r.Get("/agents/{id}/messages", h.listMessages)

		r.Post("/messages", h.postMessage)
		r.Get("/messages/{id}", h.getMessage)
		r.Delete("/messages/{id}", h.deleteMessage)

		r.Post("/attachments", h.uploadAttachment)
		r.Get("/attachments/{id}", h.getAttachment)
		r.Get("/attachments/{id}/download", h.downloadAttachment)
		r.Delete("/attachments/{id}", h.deleteAttachment)

		r.Get("/integrations", h.listIntegrations)
		r.Post("/integrations", h.createIntegration)
		r.Get("/integrations/{id}", h.getIntegration)
		r.Delete("/integrations/{id}", h.deleteIntegration)

		r.Get("/language-models", h.listLanguageModels)
		r.Post("/language-models", h.createLanguageModel)
		r.Get("/language-models/{id}", h.getLanguageModel)
		r.Put("/language-models/{id}", h.updateLanguageModel)
		r.Delete("/language-models/{id}", h.deleteLanguageModel)
		r.Put("/language-models/{id}/settings/{key}", h.updateLanguageModelSetting)
	})

	r.Get("/ws/task_updates/{id}", h.taskUpdates)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// tenantSchema names the schema for this request. Schema validity is
// enforced by the store on every query.
func tenantSchema(r *http.Request) string {
	if s := r.Header.Get(tenantHeader); s != "" {
		return s
	}
	return "public"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidField):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
