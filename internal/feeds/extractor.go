// Package feeds implements the extraction and scheduling pipeline: the
// Extractor abstraction and its two back-ends (XPath, Lua script), the
// per-feed runtime state, and the fetch scheduler.
package feeds

import (
	"context"
	"net/url"

	"github.com/slowlime/feedgen/internal/models"
)

// Context carries the per-call information an Extractor needs beyond the raw
// HTML body. FetchURL is the absolute URL the HTML was retrieved from, used
// to resolve relative URLs produced by extractors.
type Context struct {
	FetchURL *url.URL
}

// Extractor maps a fetched HTML document to a list of normalized entries.
// Implementations are stateful (a compiled XPath cache, a loaded VM) and
// must only ever be invoked under the caller's per-feed exclusive lock; they
// are not required to be safe for concurrent use from multiple goroutines.
type Extractor interface {
	Extract(ctx context.Context, ectx Context, html string) ([]models.Entry, error)
}
