package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/store"
)

// maxUploadBytes caps attachment uploads at 10 MB.
const maxUploadBytes = 10 << 20

func (h *Handler) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("parse upload: %v", err)})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("read upload: %v", err)})
		return
	}

	att := &store.Attachment{
		ID:            uuid.NewString(),
		FileName:      header.Filename,
		RawContent:    raw,
		ParsedContent: r.FormValue("parsed_content"),
	}
	if err := h.store.CreateAttachment(r.Context(), tenantSchema(r), att); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("attachment uploaded",
		zap.String("attachment_id", att.ID),
		zap.String("file_name", att.FileName),
		zap.Int("bytes", len(raw)))
	writeJSON(w, http.StatusCreated, attachmentInfo{
		ID:            att.ID,
		FileName:      att.FileName,
		ParsedContent: att.ParsedContent,
	})
}

func (h *Handler) getAttachment(w http.ResponseWriter, r *http.Request) {
	att, err := h.store.GetAttachment(r.Context(), tenantSchema(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachmentInfo{
		ID:            att.ID,
		FileName:      att.FileName,
		ParsedContent: att.ParsedContent,
	})
}

func (h *Handler) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	att, err := h.store.GetAttachment(r.Context(), tenantSchema(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(att.RawContent)
}

func (h *Handler) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAttachment(r.Context(), tenantSchema(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
