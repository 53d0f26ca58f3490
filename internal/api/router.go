package api

import (
	"embed"
	"html/template"

	"github.com/go-chi/chi/v5"

	"github.com/slowlime/feedgen/internal/api/handlers"
	"github.com/slowlime/feedgen/internal/feeds"
	"github.com/slowlime/feedgen/internal/storage"
)

//go:embed templates/index.html.tmpl
var templatesFS embed.FS

// NewRouter creates and configures feedgen's HTTP router: the feed index,
// the per-feed RSS channel, and the force-update endpoint.
func NewRouter(store *storage.Store, states map[string]*feeds.State) *chi.Mux {
	tmpl := template.Must(template.ParseFS(templatesFS, "templates/index.html.tmpl"))

	r := chi.NewRouter()

	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Get("/", handlers.Index(store, states, tmpl))
	r.Get("/feeds/{name}", handlers.GetFeed(store))
	r.Post("/feeds/{name}/update", handlers.UpdateFeed(states))

	return r
}
