// Package config loads reader configuration from defaults, an optional YAML
// file and READER_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/versification"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// the section from the field: READER_STORE__MAX_BYTES -> store.max_bytes.
const EnvPrefix = "READER_"

// Config is the top-level reader configuration, corresponding to reader.yaml.
type Config struct {
	Server        ServerConfig        `yaml:"server" koanf:"server"`
	Store         StoreConfig         `yaml:"store" koanf:"store"`
	Data          DataConfig          `yaml:"data" koanf:"data"`
	Versification VersificationConfig `yaml:"versification" koanf:"versification"`
	Log           LogConfig           `yaml:"log" koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr" koanf:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	// WritesPerMinute budgets preference writes per browsing context; 0
	// disables the limit.
	WritesPerMinute int `yaml:"writes_per_minute" koanf:"writes_per_minute"`
	WriteBurst      int `yaml:"write_burst" koanf:"write_burst"`
	// PageCacheSize bounds the rendered chapter cache; 0 disables it.
	PageCacheSize int `yaml:"page_cache_size" koanf:"page_cache_size"`
}

// StoreConfig selects the preference store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend" koanf:"backend"`
	Path     string `yaml:"path" koanf:"path"`
	MaxBytes int    `yaml:"max_bytes" koanf:"max_bytes"`
	Watch    bool   `yaml:"watch" koanf:"watch"`
}

// DataConfig locates the book files.
type DataConfig struct {
	Dir          string `yaml:"dir" koanf:"dir"`
	BookCacheTTL string `yaml:"book_cache_ttl" koanf:"book_cache_ttl"`
}

// VersificationConfig locates the versification dataset. URL wins over Path
// when both are set.
type VersificationConfig struct {
	Path    string `yaml:"path" koanf:"path"`
	URL     string `yaml:"url" koanf:"url"`
	Workers int    `yaml:"workers" koanf:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			WritesPerMinute: 120,
			WriteBurst:      20,
			PageCacheSize:   256,
		},
		Store: StoreConfig{
			Backend:  kvstore.BackendFile,
			Path:     "data/prefs.json",
			MaxBytes: 5 << 20,
			Watch:    true,
		},
		Data: DataConfig{
			Dir:          "data/books",
			BookCacheTTL: "10m",
		},
		Versification: VersificationConfig{
			Path:    "data/versification.json",
			Workers: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, if it exists, then overlays READER_*
// environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validBackends = map[string]bool{
	kvstore.BackendMemory: true,
	kvstore.BackendFile:   true,
	kvstore.BackendSQLite: true,
	kvstore.BackendNone:   true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return rerrors.NewValidation("server.addr", "", "address is required")
	}
	if c.Server.WritesPerMinute < 0 || c.Server.WriteBurst < 0 {
		return rerrors.NewValidation("server.writes_per_minute",
			fmt.Sprintf("%d/%d", c.Server.WritesPerMinute, c.Server.WriteBurst), "write limits must be non-negative")
	}
	if c.Server.PageCacheSize < 0 {
		return rerrors.NewValidation("server.page_cache_size", fmt.Sprint(c.Server.PageCacheSize), "must be non-negative")
	}
	if !validBackends[c.Store.Backend] {
		return rerrors.NewValidation("store.backend", c.Store.Backend,
			"must be one of memory, file, sqlite, none")
	}
	if (c.Store.Backend == kvstore.BackendFile || c.Store.Backend == kvstore.BackendSQLite) && c.Store.Path == "" {
		return rerrors.NewValidation("store.path", "", "path is required for the "+c.Store.Backend+" backend")
	}
	if c.Store.MaxBytes < 0 {
		return rerrors.NewValidation("store.max_bytes", fmt.Sprint(c.Store.MaxBytes), "must be non-negative")
	}
	if c.Data.Dir == "" {
		return rerrors.NewValidation("data.dir", "", "book directory is required")
	}
	if _, err := c.BookCacheTTL(); err != nil {
		return rerrors.NewValidation("data.book_cache_ttl", c.Data.BookCacheTTL, "not a duration")
	}
	if c.Versification.Workers < 0 {
		return rerrors.NewValidation("versification.workers", fmt.Sprint(c.Versification.Workers), "must be non-negative")
	}
	if c.Versification.URL != "" && !strings.HasPrefix(c.Versification.URL, "http://") &&
		!strings.HasPrefix(c.Versification.URL, "https://") {
		return rerrors.NewValidation("versification.url", c.Versification.URL, "must be an http or https URL")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return rerrors.NewValidation("log.level", c.Log.Level, "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return rerrors.NewValidation("log.format", c.Log.Format, "must be json or text")
	}
	return nil
}

// BookCacheTTL parses the book cache TTL. Empty means no expiry.
func (c *Config) BookCacheTTL() (time.Duration, error) {
	if c.Data.BookCacheTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Data.BookCacheTTL)
}

// StoreOptions converts the store section for kvstore.Open.
func (c *Config) StoreOptions() kvstore.Options {
	return kvstore.Options{
		Backend:  c.Store.Backend,
		Path:     c.Store.Path,
		MaxBytes: c.Store.MaxBytes,
		Watch:    c.Store.Watch,
	}
}

// VersificationSource returns the dataset source: the URL when set, else the
// file path.
func (c *Config) VersificationSource() versification.Source {
	if c.Versification.URL != "" {
		return versification.NewHTTPSource(c.Versification.URL)
	}
	return versification.FileSource{Path: c.Versification.Path}
}

// InitLogging configures the default logger from the log section.
func (c *Config) InitLogging() {
	logging.InitLogger(logging.ParseLevel(c.Log.Level), logging.ParseFormat(c.Log.Format))
}
