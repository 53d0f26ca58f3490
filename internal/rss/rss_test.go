package rss

import (
	"encoding/xml"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/slowlime/feedgen/internal/models"
)

func TestChannel_ProducesValidRSS2(t *testing.T) {
	u, _ := url.Parse("https://ex.test/x")
	pub := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	author := "Jane"

	entries := []models.Entry{
		{ID: "1", Title: "T", Description: "D", URL: u, Author: &author, PubDate: &pub},
	}

	data, err := Channel("blog", "https://feedgen.local/feeds/blog", entries)
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}

	if !strings.HasPrefix(string(data), xml.Header) {
		t.Error("output should start with the XML declaration")
	}

	var parsed struct {
		XMLName xml.Name `xml:"rss"`
		Channel struct {
			Generator string `xml:"generator"`
			Items     []struct {
				Title   string `xml:"title"`
				Link    string `xml:"link"`
				Author  string `xml:"author"`
				PubDate string `xml:"pubDate"`
				GUID    struct {
					IsPermaLink string `xml:"isPermaLink,attr"`
					Value       string `xml:",chardata"`
				} `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("re-parsing generated rss: %v", err)
	}

	if len(parsed.Channel.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(parsed.Channel.Items))
	}
	item := parsed.Channel.Items[0]
	if item.Title != "T" || item.Link != "https://ex.test/x" || item.Author != "Jane" {
		t.Errorf("item mismatch: %+v", item)
	}
	if item.GUID.IsPermaLink != "false" || item.GUID.Value != "feedgen/blog/1" {
		t.Errorf("guid mismatch: %+v", item.GUID)
	}
	if parsed.Channel.Generator != Generator {
		t.Errorf("generator = %q, want %q", parsed.Channel.Generator, Generator)
	}
}

func TestChannel_OmitsAuthorWhenAbsent(t *testing.T) {
	u, _ := url.Parse("https://ex.test/x")
	entries := []models.Entry{{ID: "1", Title: "T", Description: "D", URL: u}}

	data, err := Channel("blog", "https://feedgen.local/feeds/blog", entries)
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	if strings.Contains(string(data), "<author>") {
		t.Error("author element should be omitted when no author is present")
	}
}
