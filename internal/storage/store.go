package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/slowlime/feedgen/internal/models"
)

// FeedInfo is a stored feed's summary, as returned by GetFeeds.
type FeedInfo struct {
	Name        string
	LastUpdated time.Time
	EntryCount  int
}

// UpsertEntries atomically upserts a feed row (bumping last_updated to now)
// and, for each entry, an entries row keyed by (feed_id, entry_id). On
// conflict the entry's title/description/url/author/published are updated
// but retrieved is left untouched, preserving first-seen ordering.
func (s *Store) UpsertEntries(ctx context.Context, feedName string, entries []models.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := formatTime(time.Now())

	var feedID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO feeds (name, last_updated)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_updated = excluded.last_updated
		RETURNING id`,
		feedName, now,
	).Scan(&feedID)
	if err != nil {
		return fmt.Errorf("upserting feed %q: %w", feedName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (feed_id, retrieved, entry_id, title, description, url, author, published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, entry_id) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			url         = excluded.url,
			author      = excluded.author,
			published   = excluded.published`)
	if err != nil {
		return fmt.Errorf("preparing entry upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var author sql.NullString
		if e.Author != nil {
			author = sql.NullString{String: *e.Author, Valid: true}
		}
		var published sql.NullString
		if e.PubDate != nil {
			published = sql.NullString{String: formatTime(*e.PubDate), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			feedID, now, e.ID, e.Title, e.Description, e.URL.String(), author, published,
		); err != nil {
			return fmt.Errorf("upserting entry %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// GetFeedLastUpdated returns the feed's last_updated instant, or ErrNotFound
// if no such feed has ever been written to.
func (s *Store) GetFeedLastUpdated(ctx context.Context, feedName string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_updated FROM feeds WHERE name = ?", feedName,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last_updated for feed %q: %w", feedName, err)
	}

	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last_updated for feed %q: %w", feedName, err)
	}
	return t, nil
}

// GetFeeds returns every stored feed's name, last-updated time, and entry
// count, ordered by feed id. Feeds with zero entries yield EntryCount = 0.
// The feed rows and the per-feed entry counts come from two separate
// queries and are combined client-side by feed id, rather than via a JOIN,
// to keep the entry-count aggregation simple to reason about.
func (s *Store) GetFeeds(ctx context.Context) ([]FeedInfo, error) {
	type row struct {
		id          int64
		name        string
		lastUpdated string
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, last_updated FROM feeds ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	var feedRows []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name, &r.lastUpdated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning feed row: %w", err)
		}
		feedRows = append(feedRows, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating feed rows: %w", err)
	}
	rows.Close()

	countRows, err := s.db.QueryContext(ctx, `
		SELECT feed_id, COUNT(*)
		FROM entries
		GROUP BY feed_id
		ORDER BY feed_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying entry counts: %w", err)
	}
	counts := make(map[int64]int)
	for countRows.Next() {
		var id int64
		var count int
		if err := countRows.Scan(&id, &count); err != nil {
			countRows.Close()
			return nil, fmt.Errorf("scanning entry count row: %w", err)
		}
		counts[id] = count
	}
	if err := countRows.Err(); err != nil {
		countRows.Close()
		return nil, fmt.Errorf("iterating entry count rows: %w", err)
	}
	countRows.Close()

	result := make([]FeedInfo, 0, len(feedRows))
	for _, r := range feedRows {
		lastUpdated, err := parseTime(r.lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parsing last_updated for feed %q: %w", r.name, err)
		}

		// A feed with no entries has no row in the count query, so the
		// map's zero default gives it EntryCount = 0.
		entryCount := counts[r.id]
		result = append(result, FeedInfo{
			Name:        r.name,
			LastUpdated: lastUpdated,
			EntryCount:  entryCount,
		})
	}

	return result, nil
}

// GetFeedEntries returns up to limit entries for the feed, ordered by
// retrieved DESC (newest-first-seen). Entries with a malformed URL column
// are logged and skipped rather than failing the call. Every returned entry
// has PubDate set: to Published if present, else to Retrieved.
func (s *Store) GetFeedEntries(ctx context.Context, feedName string, limit int) ([]models.Entry, error) {
	var feedID int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM feeds WHERE name = ?", feedName).Scan(&feedID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed id for %q: %w", feedName, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT retrieved, entry_id, title, description, url, author, published
		FROM entries
		WHERE feed_id = ?
		ORDER BY retrieved DESC
		LIMIT ?`,
		feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries for feed %q: %w", feedName, err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		var retrieved, entryID, title, description, rawURL string
		var author, published sql.NullString

		if err := rows.Scan(&retrieved, &entryID, &title, &description, &rawURL, &author, &published); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}

		u, err := url.Parse(rawURL)
		if err != nil {
			slog.Error("stored entry has a malformed url column; skipping",
				"feed", feedName, "entry_id", entryID, "error", err)
			continue
		}

		retrievedAt, err := parseTime(retrieved)
		if err != nil {
			slog.Error("stored entry has a malformed retrieved column; skipping",
				"feed", feedName, "entry_id", entryID, "error", err)
			continue
		}

		e := models.Entry{
			ID:          entryID,
			Title:       title,
			Description: description,
			URL:         u,
		}
		if author.Valid && author.String != "" {
			a := author.String
			e.Author = &a
		}

		pubDate := parseTimePtr(published)
		if pubDate == nil {
			pubDate = &retrievedAt
		}
		e.PubDate = pubDate

		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}

	return result, nil
}
