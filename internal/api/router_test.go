package api

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/slowlime/feedgen/internal/feeds"
	"github.com/slowlime/feedgen/internal/models"
	"github.com/slowlime/feedgen/internal/storage"
)

func newTestStoreForAPI(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return storage.NewStore(db)
}

func TestRouter_GetFeed_UnknownReturns404(t *testing.T) {
	store := newTestStoreForAPI(t)
	router := NewRouter(store, map[string]*feeds.State{})

	req := httptest.NewRequest(http.MethodGet, "/feeds/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_GetFeed_ReturnsRSS(t *testing.T) {
	store := newTestStoreForAPI(t)
	u, _ := url.Parse("https://ex.test/x")
	if err := store.UpsertEntries(context.Background(), "blog", []models.Entry{
		{ID: "1", Title: "T", Description: "D", URL: u},
	}); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	router := NewRouter(store, map[string]*feeds.State{})

	req := httptest.NewRequest(http.MethodGet, "/feeds/blog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/rss+xml" {
		t.Errorf("Content-Type = %q, want application/rss+xml", ct)
	}
}

// TestRouter_GetFeed_OrdersEntriesByPubDateDescending guards against
// regressing to GetFeedEntries' storage order (retrieved DESC): all three
// entries here are upserted in a single call and so share one "retrieved"
// timestamp, landing in insertion (ascending pub_date) order unless the
// handler re-sorts by pub_date before rendering.
func TestRouter_GetFeed_OrdersEntriesByPubDateDescending(t *testing.T) {
	store := newTestStoreForAPI(t)
	u, _ := url.Parse("https://ex.test/x")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldest := base
	middle := base.Add(24 * time.Hour)
	newest := base.Add(48 * time.Hour)

	if err := store.UpsertEntries(context.Background(), "blog", []models.Entry{
		{ID: "1", Title: "Oldest", Description: "D", URL: u, PubDate: &oldest},
		{ID: "2", Title: "Middle", Description: "D", URL: u, PubDate: &middle},
		{ID: "3", Title: "Newest", Description: "D", URL: u, PubDate: &newest},
	}); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	router := NewRouter(store, map[string]*feeds.State{})

	req := httptest.NewRequest(http.MethodGet, "/feeds/blog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var doc struct {
		Channel struct {
			Items []struct {
				Title string `xml:"title"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshaling response body: %v", err)
	}

	want := []string{"Newest", "Middle", "Oldest"}
	if len(doc.Channel.Items) != len(want) {
		t.Fatalf("got %d items, want %d", len(doc.Channel.Items), len(want))
	}
	for i, w := range want {
		if doc.Channel.Items[i].Title != w {
			t.Errorf("item %d title = %q, want %q", i, doc.Channel.Items[i].Title, w)
		}
	}
}

func TestRouter_UpdateFeed_DisabledReturns403(t *testing.T) {
	store := newTestStoreForAPI(t)
	states := map[string]*feeds.State{
		"blog": {Name: "blog", Enabled: false},
	}
	router := NewRouter(store, states)

	req := httptest.NewRequest(http.MethodPost, "/feeds/blog/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("got status %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_UpdateFeed_EnabledReturns204AndSignals(t *testing.T) {
	store := newTestStoreForAPI(t)
	states := map[string]*feeds.State{
		"blog": {Name: "blog", Enabled: true, ForceUpdate: make(chan struct{}, 1)},
	}
	router := NewRouter(store, states)

	req := httptest.NewRequest(http.MethodPost, "/feeds/blog/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("got status %d, want %d", w.Code, http.StatusNoContent)
	}

	select {
	case <-states["blog"].ForceUpdate:
	case <-time.After(time.Second):
		t.Error("expected the force-update channel to receive a notification")
	}
}

func TestRouter_UpdateFeed_UnknownReturns404(t *testing.T) {
	store := newTestStoreForAPI(t)
	router := NewRouter(store, map[string]*feeds.State{})

	req := httptest.NewRequest(http.MethodPost, "/feeds/nonexistent/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_Index_RendersHTML(t *testing.T) {
	store := newTestStoreForAPI(t)
	router := NewRouter(store, map[string]*feeds.State{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
}
