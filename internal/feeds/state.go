package feeds

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/slowlime/feedgen/internal/config"
)

// State is a feed's immutable runtime record, built once at startup from
// config and handed to the Fetcher. The extractor is guarded by a mutex
// because extraction must never run concurrently with itself for a given
// feed (I4); contention on it is nil in practice since only that feed's own
// task ever locks it.
type State struct {
	Name          string
	RequestURL    *url.URL
	FetchInterval time.Duration
	Enabled       bool

	extractorMu sync.Mutex
	extractor   Extractor

	// ForceUpdate is a capacity-1 buffered channel used as a level-triggered
	// notification: a non-blocking send coalesces any number of pending
	// force-update requests into a single pending tick. Present iff Enabled
	// (I5): disabled feeds cannot be force-refreshed.
	ForceUpdate chan struct{}
}

// WithExtractor runs fn with exclusive access to the feed's extractor.
func (s *State) WithExtractor(fn func(Extractor) error) error {
	s.extractorMu.Lock()
	defer s.extractorMu.Unlock()
	return fn(s.extractor)
}

// RequestForceUpdate signals the feed's force-update channel without
// blocking, coalescing concurrent requests into at most one extra tick.
// It reports false if the feed has no force-update channel (disabled).
func (s *State) RequestForceUpdate() bool {
	if s.ForceUpdate == nil {
		return false
	}
	select {
	case s.ForceUpdate <- struct{}{}:
	default:
	}
	return true
}

// BuildStates constructs one State per configured feed, compiling each
// feed's extractor up front so configuration and extractor-compile errors
// (ExtractorCompile) surface at startup rather than on the first tick.
func BuildStates(cfg *config.Config) (map[string]*State, error) {
	states := make(map[string]*State, len(cfg.Feeds))

	for name, fc := range cfg.Feeds {
		requestURL, err := url.Parse(fc.RequestURL)
		if err != nil {
			return nil, fmt.Errorf("feed %q: parsing request-url: %w", name, err)
		}

		extractor, err := buildExtractor(name, fc)
		if err != nil {
			return nil, fmt.Errorf("feed %q: building extractor: %w", name, err)
		}

		interval := cfg.FetchInterval.Duration
		if fc.FetchInterval != nil {
			interval = fc.FetchInterval.Duration
		}

		st := &State{
			Name:          name,
			RequestURL:    requestURL,
			FetchInterval: interval,
			Enabled:       fc.IsEnabled(),
			extractor:     extractor,
		}
		if st.Enabled {
			st.ForceUpdate = make(chan struct{}, 1)
		}

		states[name] = st
	}

	return states, nil
}

func buildExtractor(name string, fc *config.FeedConfig) (Extractor, error) {
	switch fc.Extractor.Kind {
	case config.ExtractorXPath:
		return NewXPathExtractor(*fc.Extractor.XPath)
	case config.ExtractorLua:
		return NewScriptExtractor(name, fc.Extractor.Lua.Path)
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", fc.Extractor.Kind)
	}
}
