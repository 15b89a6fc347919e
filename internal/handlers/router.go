package handlers

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"multidisplay/internal/signage"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	OutboxSize int
	// TemplateWrites throttles POST /template. Nil means unlimited.
	TemplateWrites *rate.Limiter
	// Static is served under /static when set.
	Static fs.FS
}

// NewRouter mounts every route. Page and API routes run under a request
// timeout; socket and stream routes do not.
func NewRouter(b *signage.Broadcaster, log zerolog.Logger, opts RouterOptions) chi.Router {
	writes := opts.TemplateWrites
	if writes == nil {
		writes = rate.NewLimiter(rate.Inf, 1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	if opts.Static != nil {
		r.Mount("/static", http.StripPrefix("/static", http.FileServer(http.FS(opts.Static))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		NewPageHandler().RegisterRoutes(r)
		NewTemplateHandler(b, log, writes).RegisterRoutes(r)
		NewAPIHandler(b).RegisterRoutes(r)
	})
	NewSocketHandler(b, log, opts.OutboxSize).RegisterRoutes(r)
	return r
}
