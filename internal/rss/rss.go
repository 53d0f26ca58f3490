// Package rss serializes feedgen's stored entries into RSS 2.0 XML, the
// format served at GET /feeds/:name.
package rss

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/slowlime/feedgen/internal/models"
)

// MaxEntryCount bounds how many of a feed's most recent entries are
// included in a channel, per the HTTP surface contract.
const MaxEntryCount = 100

// Generator is the value used for the channel's <generator> element.
const Generator = "Feedgen 1.0"

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	Generator     string `xml:"generator"`
	LastBuildDate string `xml:"lastBuildDate"`
	Items         []item `xml:"item"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Author      string `xml:"author,omitempty"`
	GUID        guid   `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Channel renders feedName's entries as an RSS 2.0 document. feedURL is the
// feed's local RSS URL (used as the channel <link>). Entries are expected already sorted newest pub_date first and capped at
// MaxEntryCount by the caller.
func Channel(feedName, feedURL string, entries []models.Entry) ([]byte, error) {
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		var author string
		if e.Author != nil {
			author = *e.Author
		}
		var pubDate string
		if e.PubDate != nil {
			pubDate = e.PubDate.Format(time.RFC1123Z)
		}

		items = append(items, item{
			Title:       e.Title,
			Link:        e.URL.String(),
			Description: e.Description,
			Author:      author,
			GUID:        guid{IsPermaLink: "false", Value: fmt.Sprintf("feedgen/%s/%s", feedName, e.ID)},
			PubDate:     pubDate,
		})
	}

	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:         feedName,
			Link:          feedURL,
			Description:   fmt.Sprintf("%s, synthesized by feedgen", feedName),
			Generator:     Generator,
			LastBuildDate: time.Now().Format(time.RFC1123Z),
			Items:         items,
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling rss channel: %w", err)
	}

	return append([]byte(xml.Header), out...), nil
}
