package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"

	"github.com/slowlime/feedgen/internal/config"
	"github.com/slowlime/feedgen/internal/models"
)

// xhtmlNamespace is bound to the "html" prefix in every XPath context, so
// expressions can be written as //html:div[...] against HTML5 documents
// that carry no namespace of their own.
const xhtmlNamespace = "http://www.w3.org/1999/xhtml"

var xpathNamespaces = map[string]string{"html": xhtmlNamespace}

// compiledXPathCache memoizes compiled expressions by source text. Compiled
// xpath.Expr values are safe to share across goroutines (evaluation takes a
// fresh NodeNavigator per call), so a single process-wide cache suffices; a
// per-worker-thread cache is only needed for engines whose compiled form is
// not itself safe to share, which is not the case here.
var compiledXPathCache sync.Map // string -> *xpath.Expr

func compileXPath(exprStr string) (*xpath.Expr, error) {
	if cached, ok := compiledXPathCache.Load(exprStr); ok {
		return cached.(*xpath.Expr), nil
	}

	expr, err := xpath.CompileWithNS(exprStr, xpathNamespaces)
	if err != nil {
		return nil, fmt.Errorf("compiling xpath %q: %w", exprStr, err)
	}

	actual, _ := compiledXPathCache.LoadOrStore(exprStr, expr)
	return actual.(*xpath.Expr), nil
}

// XPathExtractor extracts entries from HTML using a fixed set of XPath
// expressions: one to select entry nodes, and one per output field
// evaluated relative to each entry node.
type XPathExtractor struct {
	cfg config.XPathExtractorConfig

	entryExpr       *xpath.Expr
	idExpr          *xpath.Expr
	titleExpr       *xpath.Expr
	descriptionExpr *xpath.Expr
	urlExpr         *xpath.Expr
	authorExpr      *xpath.Expr
	pubDateExpr     *xpath.Expr
}

// NewXPathExtractor compiles every XPath expression in cfg up front, so
// config errors surface at startup (ExtractorCompile) rather than on the
// first tick.
func NewXPathExtractor(cfg config.XPathExtractorConfig) (*XPathExtractor, error) {
	x := &XPathExtractor{cfg: cfg}

	var err error
	if x.entryExpr, err = compileXPath(cfg.Entry); err != nil {
		return nil, err
	}
	if x.idExpr, err = compileXPath(cfg.ID); err != nil {
		return nil, err
	}
	if x.titleExpr, err = compileXPath(cfg.Title); err != nil {
		return nil, err
	}
	if x.descriptionExpr, err = compileXPath(cfg.Description); err != nil {
		return nil, err
	}
	if x.urlExpr, err = compileXPath(cfg.URL); err != nil {
		return nil, err
	}
	if cfg.Author != "" {
		if x.authorExpr, err = compileXPath(cfg.Author); err != nil {
			return nil, err
		}
	}
	if cfg.PubDate != "" {
		if x.pubDateExpr, err = compileXPath(cfg.PubDate); err != nil {
			return nil, err
		}
	}

	return x, nil
}

// Extract implements Extractor.
func (x *XPathExtractor) Extract(_ context.Context, ectx Context, html string) ([]models.Entry, error) {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	root := htmlquery.CreateXPathNavigator(doc)

	result := x.entryExpr.Evaluate(root)
	iter, ok := result.(*xpath.NodeIterator)
	if !ok {
		return nil, fmt.Errorf("entry expression %q did not yield a node-set", x.cfg.Entry)
	}

	var entries []models.Entry
	index := 0
	for iter.MoveNext() {
		index++
		node := iter.Current().Copy()

		entry, err := x.extractOne(ectx, node)
		if err != nil {
			slog.Warn("skipping xpath entry", "index", index, "error", err)
			continue
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

func (x *XPathExtractor) extractOne(ectx Context, node xpath.NodeNavigator) (*models.Entry, error) {
	id, err := x.evalRequiredString(node, x.idExpr, "id")
	if err != nil {
		return nil, err
	}
	title, err := x.evalRequiredString(node, x.titleExpr, "title")
	if err != nil {
		return nil, err
	}
	description := evalString(node, x.descriptionExpr)
	rawURL, err := x.evalRequiredString(node, x.urlExpr, "url")
	if err != nil {
		return nil, err
	}

	resolved, err := ectx.FetchURL.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}

	entry := &models.Entry{
		ID:          id,
		Title:       title,
		Description: description,
		URL:         resolved,
	}

	if x.authorExpr != nil {
		if author := evalString(node, x.authorExpr); author != "" {
			entry.Author = &author
		}
	}

	if x.pubDateExpr != nil && x.cfg.PubDateFormat != "" {
		raw := evalString(node, x.pubDateExpr)
		if raw != "" {
			t, err := time.Parse(x.cfg.PubDateFormat, raw)
			if err != nil {
				return nil, fmt.Errorf("parsing pub_date %q with format %q: %w", raw, x.cfg.PubDateFormat, err)
			}
			entry.PubDate = &t
		}
	}

	return entry, nil
}

func (x *XPathExtractor) evalRequiredString(node xpath.NodeNavigator, expr *xpath.Expr, field string) (string, error) {
	v := evalString(node, expr)
	if v == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	return v, nil
}

// evalString evaluates expr relative to node and stringifies the result:
// node-sets concatenate each matched node's string-value in document order,
// scalars use the XPath string coercion.
func evalString(node xpath.NodeNavigator, expr *xpath.Expr) string {
	result := expr.Evaluate(node.Copy())

	switch v := result.(type) {
	case *xpath.NodeIterator:
		var sb strings.Builder
		for v.MoveNext() {
			sb.WriteString(v.Current().Value())
		}
		return sb.String()
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
