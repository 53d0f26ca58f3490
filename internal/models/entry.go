// Package models holds the data types shared between extractors, storage,
// and the HTTP surface.
package models

import (
	"net/url"
	"time"
)

// Entry is a single normalized feed item produced by an Extractor and, once
// persisted, read back out of Storage. URL is always absolute; Author and
// PubDate are optional.
type Entry struct {
	ID          string
	Title       string
	Description string
	URL         *url.URL
	Author      *string
	PubDate     *time.Time
}
