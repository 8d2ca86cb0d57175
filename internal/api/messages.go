package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/agents"
	"github.com/nidhogg/agentlab/internal/store"
)

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	schema := tenantSchema(r)
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetAgent(r.Context(), schema, id); err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.store.ListMessages(r.Context(), schema, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// postMessage persists the inbound human message, runs the agent's turn to
// completion and persists the assistant reply bound to it via replies_to.
// The reply is what the caller gets back; step-level progress streams over
// the WebSocket bridge instead.
func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var req agents.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.AgentID == "" || req.MessageContent == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent_id and message_content are required"})
		return
	}
	if req.MessageRole == "" {
		req.MessageRole = agents.RoleHuman
	}
	if req.MessageRole != agents.RoleHuman {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only human messages are accepted"})
		return
	}

	schema := tenantSchema(r)
	a, err := h.store.GetAgent(r.Context(), schema, req.AgentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !a.IsActive {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent is deactivated"})
		return
	}
	variant, err := h.catalog.Get(a.AgentType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	inbound := &store.Message{
		ID:             uuid.NewString(),
		MessageRole:    req.MessageRole,
		MessageContent: req.MessageContent,
		AgentID:        req.AgentID,
	}
	if req.AttachmentID != "" {
		inbound.AttachmentID = &req.AttachmentID
	}
	if err := h.store.CreateMessage(r.Context(), schema, inbound); err != nil {
		h.writeError(w, err)
		return
	}

	reply, err := variant.ProcessMessage(r.Context(), &req, schema)
	if err != nil {
		h.logger.Error("agent turn failed",
			zap.String("agent_id", req.AgentID),
			zap.String("agent_type", a.AgentType),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	outbound := &store.Message{
		ID:             uuid.NewString(),
		MessageRole:    reply.MessageRole,
		MessageContent: reply.MessageContent,
		ResponseData:   reply.ResponseData,
		AgentID:        req.AgentID,
		RepliesTo:      &inbound.ID,
	}
	if err := h.store.CreateMessage(r.Context(), schema, outbound); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outbound)
}

// attachmentInfo is attachment metadata without the raw bytes.
type attachmentInfo struct {
	ID            string `json:"id"`
	FileName      string `json:"file_name"`
	ParsedContent string `json:"parsed_content,omitempty"`
}

// expandedMessage inlines the message being replied to and the attachment
// metadata when present.
type expandedMessage struct {
	*store.Message
	RepliesToMessage *store.Message  `json:"replies_to_message,omitempty"`
	Attachment       *attachmentInfo `json:"attachment,omitempty"`
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	schema := tenantSchema(r)
	m, err := h.store.GetMessage(r.Context(), schema, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	expanded := &expandedMessage{Message: m}
	if m.RepliesTo != nil {
		parent, err := h.store.GetMessage(r.Context(), schema, *m.RepliesTo)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.writeError(w, err)
			return
		}
		expanded.RepliesToMessage = parent
	}
	if m.AttachmentID != nil {
		// Attachments can be pruned independently of messages.
		att, err := h.store.GetAttachment(r.Context(), schema, *m.AttachmentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.writeError(w, err)
			return
		}
		if att != nil {
			expanded.Attachment = &attachmentInfo{
				ID:            att.ID,
				FileName:      att.FileName,
				ParsedContent: att.ParsedContent,
			}
		}
	}
	writeJSON(w, http.StatusOK, expanded)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMessage(r.Context(), tenantSchema(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
