package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/slowlime/feedgen/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	return NewStore(db)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestUpsertEntries_CreatesFeedAndEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []models.Entry{
		{ID: "1", Title: "First", Description: "d1", URL: mustParseURL(t, "https://example.test/1")},
		{ID: "2", Title: "Second", Description: "d2", URL: mustParseURL(t, "https://example.test/2")},
	}

	if err := s.UpsertEntries(ctx, "blog", entries); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	got, err := s.GetFeedEntries(ctx, "blog", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetFeedEntries returned %d entries, want 2", len(got))
	}
}

func TestUpsertEntries_IsIdempotentAndPreservesRetrieved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := models.Entry{ID: "1", Title: "Original", Description: "d", URL: mustParseURL(t, "https://example.test/1")}
	if err := s.UpsertEntries(ctx, "blog", []models.Entry{entry}); err != nil {
		t.Fatalf("first UpsertEntries: %v", err)
	}

	before, err := s.GetFeedEntries(ctx, "blog", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(before))
	}
	firstRetrieved := *before[0].PubDate

	time.Sleep(10 * time.Millisecond)

	updated := entry
	updated.Title = "Updated"
	if err := s.UpsertEntries(ctx, "blog", []models.Entry{updated}); err != nil {
		t.Fatalf("second UpsertEntries: %v", err)
	}

	after, err := s.GetFeedEntries(ctx, "blog", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("expected 1 entry after re-upsert (no duplicate row), got %d", len(after))
	}
	if after[0].Title != "Updated" {
		t.Errorf("Title = %q, want %q", after[0].Title, "Updated")
	}
	if !after[0].PubDate.Equal(firstRetrieved) {
		t.Errorf("retrieved changed across upsert: got %v, want %v", after[0].PubDate, firstRetrieved)
	}
}

func TestGetFeedLastUpdated_UnknownFeed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFeedLastUpdated(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("GetFeedLastUpdated error = %v, want ErrNotFound", err)
	}
}

func TestGetFeedEntries_UnknownFeedReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.GetFeedEntries(context.Background(), "nonexistent", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestGetFeeds_CountsAndOrdersByFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntries(ctx, "alpha", []models.Entry{
		{ID: "1", Title: "a1", Description: "d", URL: mustParseURL(t, "https://example.test/a1")},
	}); err != nil {
		t.Fatalf("UpsertEntries alpha: %v", err)
	}
	if err := s.UpsertEntries(ctx, "beta", []models.Entry{
		{ID: "1", Title: "b1", Description: "d", URL: mustParseURL(t, "https://example.test/b1")},
		{ID: "2", Title: "b2", Description: "d", URL: mustParseURL(t, "https://example.test/b2")},
	}); err != nil {
		t.Fatalf("UpsertEntries beta: %v", err)
	}

	feeds, err := s.GetFeeds(ctx)
	if err != nil {
		t.Fatalf("GetFeeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("GetFeeds returned %d feeds, want 2", len(feeds))
	}
	if feeds[0].Name != "alpha" || feeds[0].EntryCount != 1 {
		t.Errorf("feeds[0] = %+v, want alpha with 1 entry", feeds[0])
	}
	if feeds[1].Name != "beta" || feeds[1].EntryCount != 2 {
		t.Errorf("feeds[1] = %+v, want beta with 2 entries", feeds[1])
	}
}

func TestGetFeedEntries_PubDateFallsBackToRetrieved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := models.Entry{ID: "1", Title: "t", Description: "d", URL: mustParseURL(t, "https://example.test/1")}
	if err := s.UpsertEntries(ctx, "blog", []models.Entry{entry}); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	got, err := s.GetFeedEntries(ctx, "blog", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].PubDate == nil {
		t.Fatal("PubDate should fall back to retrieved, not be nil")
	}
}

func TestGetFeedEntries_PublishedOverridesRetrieved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := models.Entry{
		ID: "1", Title: "t", Description: "d",
		URL:     mustParseURL(t, "https://example.test/1"),
		PubDate: &pub,
	}
	if err := s.UpsertEntries(ctx, "blog", []models.Entry{entry}); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	got, err := s.GetFeedEntries(ctx, "blog", 10)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !got[0].PubDate.Equal(pub) {
		t.Errorf("PubDate = %v, want %v", got[0].PubDate, pub)
	}
}

func TestGetFeedEntries_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var entries []models.Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, models.Entry{
			ID:          string(rune('a' + i)),
			Title:       "t",
			Description: "d",
			URL:         mustParseURL(t, "https://example.test/"+string(rune('a'+i))),
		})
	}
	if err := s.UpsertEntries(ctx, "blog", entries); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	got, err := s.GetFeedEntries(ctx, "blog", 2)
	if err != nil {
		t.Fatalf("GetFeedEntries: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetFeedEntries with limit 2 returned %d entries", len(got))
	}
}
