package feeds

import (
	"context"
	"net/url"
	"testing"

	"github.com/slowlime/feedgen/internal/config"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestXPathExtractor_HappyPath(t *testing.T) {
	html := `<html><body><article data-id="a1"><h1>T</h1><p>D</p><a href="/x">u</a></article></body></html>`

	x, err := NewXPathExtractor(config.XPathExtractorConfig{
		Entry:       "//html:article",
		ID:          "@data-id",
		Title:       ".//html:h1",
		Description: ".//html:p",
		URL:         ".//html:a/@href",
	})
	if err != nil {
		t.Fatalf("NewXPathExtractor: %v", err)
	}

	entries, err := x.Extract(context.Background(), Context{FetchURL: mustParse(t, "https://ex.test/page")}, html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.ID != "a1" {
		t.Errorf("ID = %q, want %q", e.ID, "a1")
	}
	if e.Title != "T" {
		t.Errorf("Title = %q, want %q", e.Title, "T")
	}
	if e.Description != "D" {
		t.Errorf("Description = %q, want %q", e.Description, "D")
	}
	if e.URL.String() != "https://ex.test/x" {
		t.Errorf("URL = %q, want %q", e.URL.String(), "https://ex.test/x")
	}
}

func TestXPathExtractor_EmptyRequiredFieldSkipsEntry(t *testing.T) {
	html := `<html><body><article data-id="a1"><h1></h1><p>D</p><a href="/x">u</a></article></body></html>`

	x, err := NewXPathExtractor(config.XPathExtractorConfig{
		Entry:       "//html:article",
		ID:          "@data-id",
		Title:       ".//html:h1",
		Description: ".//html:p",
		URL:         ".//html:a/@href",
	})
	if err != nil {
		t.Fatalf("NewXPathExtractor: %v", err)
	}

	entries, err := x.Extract(context.Background(), Context{FetchURL: mustParse(t, "https://ex.test/page")}, html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestXPathExtractor_NodeSetConcatenation(t *testing.T) {
	html := `<html><body><article data-id="a1"><h1>A<em>B</em>C</h1><p>D</p><a href="/x">u</a></article></body></html>`

	x, err := NewXPathExtractor(config.XPathExtractorConfig{
		Entry:       "//html:article",
		ID:          "@data-id",
		Title:       ".//html:h1/text()",
		Description: ".//html:p",
		URL:         ".//html:a/@href",
	})
	if err != nil {
		t.Fatalf("NewXPathExtractor: %v", err)
	}

	entries, err := x.Extract(context.Background(), Context{FetchURL: mustParse(t, "https://ex.test/page")}, html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Title != "AC" {
		t.Errorf("Title = %q, want %q (text() selects only direct text node children)", entries[0].Title, "AC")
	}
}

func TestXPathExtractor_RejectsNonNodeSetEntryExpression(t *testing.T) {
	html := `<html><body></body></html>`

	x, err := NewXPathExtractor(config.XPathExtractorConfig{
		Entry:       "count(//html:article)",
		ID:          "@data-id",
		Title:       ".//html:h1",
		Description: ".//html:p",
		URL:         ".//html:a/@href",
	})
	if err != nil {
		t.Fatalf("NewXPathExtractor: %v", err)
	}

	if _, err := x.Extract(context.Background(), Context{FetchURL: mustParse(t, "https://ex.test/page")}, html); err == nil {
		t.Fatal("expected an error for a non-node-set entry expression")
	}
}
