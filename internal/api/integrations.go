package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/secrets"
	"github.com/nidhogg/agentlab/internal/store"
)

func (h *Handler) listIntegrations(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListIntegrations(r.Context(), tenantSchema(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createIntegrationRequest struct {
	IntegrationType string `json:"integration_type"`
	APIEndpoint     string `json:"api_endpoint"`
	APIKey          string `json:"api_key"`
}

// createIntegration stores the integration row and hands its credentials to
// the secret store. The row never carries the endpoint or key.
func (h *Handler) createIntegration(w http.ResponseWriter, r *http.Request) {
	var req createIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.IntegrationType == "" || req.APIEndpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "integration_type and api_endpoint are required"})
		return
	}

	schema := tenantSchema(r)
	in := &store.Integration{
		ID:              uuid.NewString(),
		IntegrationType: req.IntegrationType,
	}
	if err := h.store.CreateIntegration(r.Context(), schema, in); err != nil {
		h.writeError(w, err)
		return
	}
	creds := &secrets.Credentials{APIEndpoint: req.APIEndpoint, APIKey: req.APIKey}
	if err := h.secrets.SaveIntegrationCredentials(r.Context(), in.ID, creds); err != nil {
		// Roll the row back rather than leave an integration nobody
		// can resolve credentials for.
		if delErr := h.store.DeleteIntegration(r.Context(), schema, in.ID); delErr != nil {
			h.logger.Warn("integration rollback failed",
				zap.String("integration_id", in.ID), zap.Error(delErr))
		}
		h.writeError(w, err)
		return
	}

	created, err := h.store.GetIntegration(r.Context(), schema, in.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getIntegration(w http.ResponseWriter, r *http.Request) {
	in, err := h.store.GetIntegration(r.Context(), tenantSchema(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handler) deleteIntegration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteIntegration(r.Context(), tenantSchema(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.secrets.DeleteIntegrationCredentials(r.Context(), id); err != nil {
		h.logger.Warn("orphaned integration credentials",
			zap.String("integration_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
