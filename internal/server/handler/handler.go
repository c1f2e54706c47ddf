// Package handler exposes the classifier service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
)

const maxBodyBytes = 1 << 20

// Handler implements the /api/v1 endpoints.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "http-handler"),
	}
}

// Classify handles POST /api/v1/models/{name}/classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req proto.ClassifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Model = r.PathValue("name")
	resp, err := h.svc.Classify(r.Context(), analytics.SourceHTTP, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Tag handles POST /api/v1/models/{name}/tag.
func (h *Handler) Tag(w http.ResponseWriter, r *http.Request) {
	var req proto.TagRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Model = r.PathValue("name")
	resp, err := h.svc.Tag(r.Context(), analytics.SourceHTTP, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Utterance handles POST /api/v1/utterances.
func (h *Handler) Utterance(w http.ResponseWriter, r *http.Request) {
	var req proto.UtteranceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, hit, err := h.svc.Utterance(r.Context(), analytics.SourceHTTP, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Models handles GET /api/v1/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.svc.Models()
	if models == nil {
		models = []proto.ModelInfo{}
	}
	h.writeJSON(w, http.StatusOK, proto.ModelsResponse{Models: models})
}

// Model handles GET /api/v1/models/{name}.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, m := range h.svc.Models() {
		if m.Name == name {
			h.writeJSON(w, http.StatusOK, m)
			return
		}
	}
	h.fail(w, r, apperrors.Newf(apperrors.ErrModelNotFound, 0, "no model named %q", name))
}

// Reload handles POST /api/v1/models/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Reload(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("models reloaded", "loaded", resp.Loaded, "failed", len(resp.Failed))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
