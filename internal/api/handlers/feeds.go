// Package handlers implements the HTTP surface's request handlers: the
// feed index, the per-feed RSS channel, and the force-update endpoint.
package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/slowlime/feedgen/internal/feeds"
	"github.com/slowlime/feedgen/internal/models"
	"github.com/slowlime/feedgen/internal/rss"
	"github.com/slowlime/feedgen/internal/storage"
)

// indexRow is the per-feed view model rendered by the index template.
type indexRow struct {
	Name        string
	LastUpdated string
	EntryCount  int
	RequestURL  string
}

// Index renders GET /: an alphabetized HTML table of every feed recorded in
// storage. A configured feed that has never been written is not listed.
func Index(store *storage.Store, states map[string]*feeds.State, tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedInfos, err := store.GetFeeds(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		rows := make([]indexRow, 0, len(feedInfos))
		for _, fi := range feedInfos {
			requestURL := ""
			if st, ok := states[fi.Name]; ok {
				requestURL = st.RequestURL.String()
			}
			rows = append(rows, indexRow{
				Name:        fi.Name,
				LastUpdated: fi.LastUpdated.Format("2006-01-02 15:04:05 MST"),
				EntryCount:  fi.EntryCount,
				RequestURL:  requestURL,
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, struct{ Feeds []indexRow }{Feeds: rows}); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// GetFeed renders GET /feeds/:name as an RSS 2.0 channel. Unknown feeds
// yield 404.
func GetFeed(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if _, err := store.GetFeedLastUpdated(r.Context(), name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		entries, err := store.GetFeedEntries(r.Context(), name, rss.MaxEntryCount)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		sortEntriesByPubDateDesc(entries)

		feedURL := requestScheme(r) + "://" + r.Host + "/feeds/" + name
		data, err := rss.Channel(name, feedURL, entries)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write(data)
	}
}

// UpdateFeed handles POST /feeds/:name/update: fire-and-return-204.
// Disabled feeds yield 403; unknown feeds yield 404.
func UpdateFeed(states map[string]*feeds.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		st, ok := states[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if !st.Enabled {
			writeError(w, http.StatusForbidden, "feed cannot be updated: disabled")
			return
		}

		st.RequestForceUpdate()
		w.WriteHeader(http.StatusNoContent)
	}
}

// sortEntriesByPubDateDesc re-sorts entries by pub_date descending.
// GetFeedEntries returns rows ordered by retrieved time, which can diverge
// from pub_date whenever a source backdates or republishes an entry; the
// served channel must be ordered by publish date regardless.
func sortEntriesByPubDateDesc(entries []models.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].PubDate, entries[j].PubDate
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
