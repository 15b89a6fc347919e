package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"multidisplay/internal/signage"
	"multidisplay/internal/viewmodel"
	"multidisplay/views/pages"
)

type TemplateHandler struct {
	broadcaster *signage.Broadcaster
	log         zerolog.Logger
	writes      *rate.Limiter
}

// NewTemplateHandler serves template reads and writes. writes throttles
// POST /template across all callers.
func NewTemplateHandler(b *signage.Broadcaster, log zerolog.Logger, writes *rate.Limiter) *TemplateHandler {
	return &TemplateHandler{
		broadcaster: b,
		log:         log.With().Str("component", "templates").Logger(),
		writes:      writes,
	}
}

func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/template", func(r chi.Router) {
		r.Get("/", h.editor)
		r.With(RateLimit(h.writes, h.log)).Post("/", h.write)
		r.Get("/{file}", h.raw)
	})
}

func (h *TemplateHandler) editor(w http.ResponseWriter, r *http.Request) {
	state, err := h.broadcaster.State()
	if err != nil {
		h.log.Error().Err(err).Msg("list templates")
		http.Error(w, "failed to list templates", http.StatusInternalServerError)
		return
	}
	data := viewmodel.TemplatePage{
		Title:     appTitle + " templates",
		Templates: state.Templates,
		Name:      r.URL.Query().Get("name"),
	}
	if data.Name != "" {
		body, ok, err := h.broadcaster.Template(data.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			data.Body = string(body)
		}
	}
	render(w, r, pages.TemplatePage(data))
}

func (h *TemplateHandler) write(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	body := r.FormValue("body")
	if err := h.broadcaster.WriteTemplate(name, []byte(body)); err != nil {
		h.log.Warn().Err(err).Str("template", name).Msg("template write failed")
		writeError(w, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/template?name="+url.QueryEscape(name), http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (h *TemplateHandler) raw(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	name, ok := strings.CutSuffix(file, ".html")
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, ok, err := h.broadcaster.Template(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}
