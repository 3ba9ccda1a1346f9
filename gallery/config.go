package gallery

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/screengallery/figma"
	"github.com/hazyhaar/screengallery/shield"
	"github.com/hazyhaar/screengallery/thumbs"
)

// Config holds all gallery configuration.
type Config struct {
	Server     ServerConfig           `yaml:"server"`
	Upstream   UpstreamConfig         `yaml:"upstream"`
	Thumbnails thumbs.Config          `yaml:"thumbnails"`
	Cache      CacheConfig            `yaml:"cache"`
	Visibility VisibilityConfig       `yaml:"visibility"`
	MCP        MCPConfig              `yaml:"mcp"`
	RateLimit  []shield.RateLimitRule `yaml:"rate_limit"`
}

// ServerConfig controls the HTTP listener and the page chrome.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Title           string        `yaml:"title"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig points the gallery at one design file.
type UpstreamConfig struct {
	BaseURL          string        `yaml:"base_url"`
	FileKey          string        `yaml:"file_key"`
	Token            string        `yaml:"token"`
	PageName         string        `yaml:"page_name"`
	CardPrefix       string        `yaml:"card_prefix"`
	Timeout          time.Duration `yaml:"timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// CacheConfig locates the persistent thumbnail tier.
type CacheConfig struct {
	DBPath string `yaml:"db_path"`
}

// VisibilityConfig controls viewport tracking of page views.
type VisibilityConfig struct {
	// RootMarginPx extends the viewport vertically for intersection checks.
	RootMarginPx int `yaml:"root_margin_px"`
	// ViewTTL expires views that have neither reported nor streamed.
	ViewTTL time.Duration `yaml:"view_ttl"`
	// MaxViews bounds the number of live views; the oldest is evicted.
	MaxViews int `yaml:"max_views"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

func (c *Config) defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.Title == "" {
		c.Server.Title = "App Screens"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = figma.DefaultBaseURL
	}
	if c.Upstream.PageName == "" {
		c.Upstream.PageName = figma.DefaultPageName
	}
	if c.Upstream.CardPrefix == "" {
		c.Upstream.CardPrefix = figma.DefaultCardPrefix
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 60 * time.Second
	}
	if c.Upstream.CacheTTL <= 0 {
		c.Upstream.CacheTTL = figma.DefaultCacheTTL
	}
	if c.Cache.DBPath == "" {
		c.Cache.DBPath = "data/gallery.db"
	}
	if c.Visibility.RootMarginPx <= 0 {
		c.Visibility.RootMarginPx = 1200
	}
	if c.Visibility.ViewTTL <= 0 {
		c.Visibility.ViewTTL = 10 * time.Minute
	}
	if c.Visibility.MaxViews <= 0 {
		c.Visibility.MaxViews = 256
	}
	if c.MCP.Name == "" {
		c.MCP.Name = "screengallery"
	}
	if c.RateLimit == nil {
		c.RateLimit = []shield.RateLimitRule{
			{Method: "POST", PathPrefix: "/api/views/", MaxRequests: 600, Window: time.Minute},
			{Method: "POST", PathPrefix: "/reload", MaxRequests: 10, Window: time.Minute},
			{Method: "POST", PathPrefix: "/api/thumbnails/", MaxRequests: 10, Window: time.Minute},
		}
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.Upstream.FileKey == "" {
		return errors.New("gallery: config: upstream.file_key is required")
	}
	if c.Upstream.Token == "" {
		return errors.New("gallery: config: upstream.token is required (or set FIGMA_TOKEN)")
	}
	return nil
}

// FigmaConfig derives the upstream client configuration.
func (c *Config) FigmaConfig() figma.Config {
	return figma.Config{
		BaseURL:          c.Upstream.BaseURL,
		FileKey:          c.Upstream.FileKey,
		Token:            c.Upstream.Token,
		Timeout:          c.Upstream.Timeout,
		CacheTTL:         c.Upstream.CacheTTL,
		BreakerThreshold: c.Upstream.BreakerThreshold,
		BreakerReset:     c.Upstream.BreakerReset,
	}
}

// DefaultConfig returns a configuration with every default applied. The
// token is taken from FIGMA_TOKEN.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Upstream.Token = os.Getenv("FIGMA_TOKEN")
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and applies defaults. ${VAR}
// references in the token are expanded; an empty token falls back to
// FIGMA_TOKEN.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gallery: read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gallery: parse config %s: %w", path, err)
	}
	cfg.Upstream.Token = os.ExpandEnv(cfg.Upstream.Token)
	if cfg.Upstream.Token == "" {
		cfg.Upstream.Token = os.Getenv("FIGMA_TOKEN")
	}
	cfg.defaults()
	return cfg, nil
}
