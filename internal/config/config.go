// Package config loads and validates feedgen's TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	BindAddr             string                 `toml:"bind-addr"`
	DBPath               string                 `toml:"db-path"`
	CacheDir             string                 `toml:"cache-dir"`
	FetchInterval        Duration               `toml:"fetch-interval"`
	MaxInitialFetchSleep Duration               `toml:"max-initial-fetch-sleep"`
	Feeds                map[string]*FeedConfig `toml:"feeds"`
}

// FeedConfig describes one configured feed.
type FeedConfig struct {
	Enabled       *bool           `toml:"enabled"`
	RequestURL    string          `toml:"request-url"`
	Extractor     ExtractorConfig `toml:"extractor"`
	FetchInterval *Duration       `toml:"fetch-interval"`
}

// IsEnabled reports whether the feed is enabled, defaulting to true when
// unset (TOML cannot distinguish a missing bool from an explicit false, so
// Enabled is a pointer).
func (f *FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

const defaultConfigContent = `bind-addr = "localhost:8080"
db-path = "./feedgen.db"
# cache-dir = "./cache"
fetch-interval = "1h"
max-initial-fetch-sleep = "5m"

# [feeds.example]
# request-url = "https://example.test/blog"
# extractor = { kind = "xpath", entry = "//html:article", id = "@data-id", title = ".//html:h1", description = ".//html:p", url = ".//html:a/@href" }
`

// Load reads and parses the TOML config from the given path. If the file
// does not exist, it creates a default config file at that path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "localhost:8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./feedgen.db"
	}
	if cfg.FetchInterval.Duration == 0 {
		cfg.FetchInterval.Duration = time.Hour
	}
	if cfg.MaxInitialFetchSleep.Duration == 0 {
		cfg.MaxInitialFetchSleep.Duration = 5 * time.Minute
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.BindAddr == "" {
		return errors.New("bind-addr must not be empty")
	}
	if cfg.DBPath == "" {
		return errors.New("db-path must not be empty")
	}
	if cfg.FetchInterval.Duration <= 0 {
		return errors.New("fetch-interval must be positive")
	}
	if cfg.MaxInitialFetchSleep.Duration < 0 {
		return errors.New("max-initial-fetch-sleep must not be negative")
	}

	for name, feed := range cfg.Feeds {
		if feed.RequestURL == "" {
			return fmt.Errorf("feeds.%s: request-url must not be empty", name)
		}
		if feed.Extractor.Kind == "" {
			return fmt.Errorf("feeds.%s: extractor.kind must be set", name)
		}
		if feed.FetchInterval != nil && feed.FetchInterval.Duration <= 0 {
			return fmt.Errorf("feeds.%s: fetch-interval must be positive", name)
		}
	}

	return nil
}

// Duration accepts either a bare integer (seconds) or a string of the form
// "<n>d <n>h <n>m <n>s" (whitespace-tolerant, each part optional, at least
// one part required) when decoded from TOML.
type Duration struct {
	time.Duration
}

var durationPattern = regexp.MustCompile(
	`^\s*(?:(\d+)d)?\s*(?:(\d+)h)?\s*(?:(\d+)m)?\s*(?:(\d+)s)?\s*$`,
)

// UnmarshalTOML implements toml.Unmarshaler. BurntSushi/toml calls this with
// the raw decoded value: int64 for a bare TOML integer, string for a quoted
// TOML string.
func (d *Duration) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case int64:
		if v < 0 {
			return fmt.Errorf("duration %d must not be negative", v)
		}
		d.Duration = time.Duration(v) * time.Second
		return nil
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration value %#v: must be an integer or a duration string", data)
	}
}

// ParseDuration parses a duration string of the form "<n>d <n>h <n>m <n>s".
// Each part is optional but at least one must be present.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	parts := []struct {
		raw  string
		unit time.Duration
	}{
		{m[1], 24 * time.Hour},
		{m[2], time.Hour},
		{m[3], time.Minute},
		{m[4], time.Second},
	}
	for _, p := range parts {
		if p.raw == "" {
			continue
		}
		n, err := strconv.ParseInt(p.raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += time.Duration(n) * p.unit
	}

	return total, nil
}

// ExtractorKind tags the closed sum of extractor configurations.
type ExtractorKind string

const (
	ExtractorXPath ExtractorKind = "xpath"
	ExtractorLua   ExtractorKind = "lua"
)

// ExtractorConfig is a tagged union on Kind: "xpath" uses XPath, "lua" uses
// Lua. Exactly one of XPath/Lua is populated, matching Kind.
type ExtractorConfig struct {
	Kind ExtractorKind
	XPath *XPathExtractorConfig
	Lua   *LuaExtractorConfig
}

// XPathExtractorConfig configures the XPath extractor (C4).
type XPathExtractorConfig struct {
	Entry         string
	ID            string
	Title         string
	Description   string
	URL           string
	Author        string
	PubDate       string
	PubDateFormat string
}

// LuaExtractorConfig configures the script extractor (C5).
type LuaExtractorConfig struct {
	Path string
}

// UnmarshalTOML implements toml.Unmarshaler. The extractor table is
// polymorphic on its "kind" key, which BurntSushi/toml hands us as a
// map[string]interface{} rather than letting us decode directly into a
// Go sum type.
func (e *ExtractorConfig) UnmarshalTOML(data interface{}) error {
	m, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("extractor config must be a table, got %T", data)
	}

	kind, _ := m["kind"].(string)
	switch ExtractorKind(kind) {
	case ExtractorXPath:
		e.Kind = ExtractorXPath
		e.XPath = &XPathExtractorConfig{
			Entry:         stringField(m, "entry"),
			ID:            stringField(m, "id"),
			Title:         stringField(m, "title"),
			Description:   stringField(m, "description"),
			URL:           stringField(m, "url"),
			Author:        stringField(m, "author"),
			PubDate:       stringField(m, "pub-date"),
			PubDateFormat: stringField(m, "pub-date-format"),
		}
		if e.XPath.Entry == "" || e.XPath.ID == "" || e.XPath.Title == "" ||
			e.XPath.Description == "" || e.XPath.URL == "" {
			return errors.New("xpath extractor requires entry, id, title, description, and url")
		}
	case ExtractorLua:
		e.Kind = ExtractorLua
		e.Lua = &LuaExtractorConfig{Path: stringField(m, "path")}
		if e.Lua.Path == "" {
			return errors.New("lua extractor requires path")
		}
	default:
		return fmt.Errorf("invalid extractor.kind %q: must be \"xpath\" or \"lua\"", kind)
	}

	return nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
