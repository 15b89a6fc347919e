package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"multidisplay/internal/signage"
	"multidisplay/pkg/versioned"
)

// APIHandler exposes the controller operations as plain HTTP for scripts.
type APIHandler struct {
	broadcaster *signage.Broadcaster
}

func NewAPIHandler(b *signage.Broadcaster) *APIHandler {
	return &APIHandler{broadcaster: b}
}

func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Put("/assignments/{client}", h.assign)
		r.Delete("/assignments/{client}", h.unassign)
	})
}

func (h *APIHandler) state(w http.ResponseWriter, r *http.Request) {
	state, err := h.broadcaster.State()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, state)
}

func (h *APIHandler) assign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	template := strings.TrimSpace(r.FormValue("template"))
	if template == "" {
		http.Error(w, "template required", http.StatusBadRequest)
		return
	}
	if err := h.broadcaster.Assign(chi.URLParam(r, "client"), template); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.broadcaster.Unassign(chi.URLParam(r, "client")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, versioned.ErrInvalidKey), errors.Is(err, signage.ErrBadCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "storage failure", http.StatusInternalServerError)
	}
}
