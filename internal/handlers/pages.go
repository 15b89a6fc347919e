package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"multidisplay/internal/viewmodel"
	"multidisplay/pkg/versioned"
	"multidisplay/views/pages"
)

const appTitle = "Multidisplay"

type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

func (h *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.controller)
	r.Get("/client/{name}", h.client)
}

func (h *PageHandler) controller(w http.ResponseWriter, r *http.Request) {
	render(w, r, pages.ControllerPage(viewmodel.ControllerPage{Title: appTitle}))
}

func (h *PageHandler) client(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := versioned.ValidateKey(name); err != nil {
		http.Error(w, "invalid client name", http.StatusBadRequest)
		return
	}
	transport := "ws"
	if r.URL.Query().Get("transport") == "sse" {
		transport = "sse"
	}
	render(w, r, pages.ClientPage(viewmodel.ClientPage{
		Title:     appTitle + " - " + name,
		Name:      name,
		Transport: transport,
	}))
}
