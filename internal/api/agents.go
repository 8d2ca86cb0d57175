package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/store"
)

// expandedAgent is an agent with its settings inlined under ag_settings.
type expandedAgent struct {
	*store.Agent
	Settings map[string]string `json:"ag_settings"`
}

func (h *Handler) expandAgent(r *http.Request, schema string, a *store.Agent) (*expandedAgent, error) {
	rows, err := h.store.GetAgentSettings(r.Context(), schema, a.ID)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.SettingKey] = row.SettingValue
	}
	return &expandedAgent{Agent: a, Settings: settings}, nil
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAgents(r.Context(), tenantSchema(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createAgentRequest struct {
	AgentName       string `json:"agent_name"`
	AgentType       string `json:"agent_type"`
	AgentSummary    string `json:"agent_summary"`
	LanguageModelID string `json:"language_model_id"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.AgentName == "" || req.LanguageModelID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent_name and language_model_id are required"})
		return
	}
	variant, err := h.catalog.Get(req.AgentType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	schema := tenantSchema(r)
	a := &store.Agent{
		ID:              uuid.NewString(),
		AgentName:       req.AgentName,
		AgentType:       req.AgentType,
		AgentSummary:    req.AgentSummary,
		LanguageModelID: req.LanguageModelID,
		IsActive:        true,
	}
	if err := h.store.CreateAgent(r.Context(), schema, a); err != nil {
		h.writeError(w, err)
		return
	}
	if err := variant.CreateDefaultSettings(r.Context(), a.ID, schema); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("agent created",
		zap.String("agent_id", a.ID),
		zap.String("agent_type", a.AgentType))

	created, err := h.store.GetAgent(r.Context(), schema, a.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	schema := tenantSchema(r)
	a, err := h.store.GetAgent(r.Context(), schema, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	expanded, err := h.expandAgent(r, schema, a)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expanded)
}

type updateAgentRequest struct {
	AgentName       string `json:"agent_name"`
	AgentSummary    string `json:"agent_summary"`
	LanguageModelID string `json:"language_model_id"`
}

func (h *Handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	schema := tenantSchema(r)
	id := chi.URLParam(r, "id")
	a, err := h.store.GetAgent(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.AgentName != "" {
		a.AgentName = req.AgentName
	}
	if req.AgentSummary != "" {
		a.AgentSummary = req.AgentSummary
	}
	if req.LanguageModelID != "" {
		a.LanguageModelID = req.LanguageModelID
	}
	if err := h.store.UpdateAgent(r.Context(), schema, a); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.store.GetAgent(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeactivateAgent(r.Context(), tenantSchema(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateSettingRequest struct {
	SettingValue string `json:"setting_value"`
}

func (h *Handler) updateAgentSetting(w http.ResponseWriter, r *http.Request) {
	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	schema := tenantSchema(r)
	id := chi.URLParam(r, "id")
	key := chi.URLParam(r, "key")
	if err := h.store.UpdateAgentSetting(r.Context(), schema, id, key, req.SettingValue); err != nil {
		h.writeError(w, err)
		return
	}
	a, err := h.store.GetAgent(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	expanded, err := h.expandAgent(r, schema, a)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expanded)
}
