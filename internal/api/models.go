package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nidhogg/agentlab/internal/store"
)

// expandedLanguageModel is a language model with its settings inlined.
type expandedLanguageModel struct {
	*store.LanguageModel
	Settings map[string]string `json:"lm_settings"`
}

func (h *Handler) expandLanguageModel(r *http.Request, schema string, lm *store.LanguageModel) (*expandedLanguageModel, error) {
	rows, err := h.store.GetLanguageModelSettings(r.Context(), schema, lm.ID)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.SettingKey] = row.SettingValue
	}
	return &expandedLanguageModel{LanguageModel: lm, Settings: settings}, nil
}

func (h *Handler) listLanguageModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListLanguageModels(r.Context(), tenantSchema(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type languageModelRequest struct {
	IntegrationID    string `json:"integration_id"`
	LanguageModelTag string `json:"language_model_tag"`
}

func (h *Handler) createLanguageModel(w http.ResponseWriter, r *http.Request) {
	var req languageModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.IntegrationID == "" || req.LanguageModelTag == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "integration_id and language_model_tag are required"})
		return
	}

	schema := tenantSchema(r)
	if _, err := h.store.GetIntegration(r.Context(), schema, req.IntegrationID); err != nil {
		h.writeError(w, err)
		return
	}
	lm := &store.LanguageModel{
		ID:               uuid.NewString(),
		IntegrationID:    req.IntegrationID,
		LanguageModelTag: req.LanguageModelTag,
	}
	if err := h.store.CreateLanguageModel(r.Context(), schema, lm); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.store.GetLanguageModel(r.Context(), schema, lm.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getLanguageModel(w http.ResponseWriter, r *http.Request) {
	schema := tenantSchema(r)
	lm, err := h.store.GetLanguageModel(r.Context(), schema, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	expanded, err := h.expandLanguageModel(r, schema, lm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expanded)
}

func (h *Handler) updateLanguageModel(w http.ResponseWriter, r *http.Request) {
	var req languageModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	schema := tenantSchema(r)
	id := chi.URLParam(r, "id")
	lm, err := h.store.GetLanguageModel(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.IntegrationID != "" {
		if _, err := h.store.GetIntegration(r.Context(), schema, req.IntegrationID); err != nil {
			h.writeError(w, err)
			return
		}
		lm.IntegrationID = req.IntegrationID
	}
	if req.LanguageModelTag != "" {
		lm.LanguageModelTag = req.LanguageModelTag
	}
	if err := h.store.UpdateLanguageModel(r.Context(), schema, lm); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.store.GetLanguageModel(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteLanguageModel(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteLanguageModel(r.Context(), tenantSchema(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateLanguageModelSetting(w http.ResponseWriter, r *http.Request) {
	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	schema := tenantSchema(r)
	id := chi.URLParam(r, "id")
	lm, err := h.store.GetLanguageModel(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.store.UpsertLanguageModelSetting(r.Context(), schema, id, key, req.SettingValue); err != nil {
		h.writeError(w, err)
		return
	}
	expanded, err := h.expandLanguageModel(r, schema, lm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expanded)
}
