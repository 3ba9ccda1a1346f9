// Package figma reads design files from the Figma REST API: the document tree
// of a file, its metadata cards, and rendered PNG thumbnails of single nodes.
package figma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://api.figma.com"
	DefaultCacheTTL = 5 * time.Minute

	maxBody = 256 << 20 // design documents can be very large
)

// Config configures a Client.
type Config struct {
	BaseURL string
	FileKey string
	Token   string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// CacheTTL is how long a successful response is served from memory.
	CacheTTL time.Duration

	// BreakerThreshold is the number of consecutive non-429 image failures
	// that open the image circuit. 0 disables the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration

	UserAgent string
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.UserAgent == "" {
		c.UserAgent = "screengallery/1.0"
	}
}

// Client talks to the upstream file and image endpoints.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   *responseCache
	breaker *breaker
	logger  *slog.Logger
}

// NewClient creates a Client. If hc is nil a client with cfg.Timeout is used.
func NewClient(cfg Config, hc *http.Client, logger *slog.Logger) (*Client, error) {
	cfg.defaults()
	if cfg.FileKey == "" {
		return nil, errors.New("figma: file key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		cfg:    cfg,
		http:   hc,
		cache:  newResponseCache(cfg.CacheTTL),
		logger: logger,
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = newBreaker(cfg.BreakerThreshold, cfg.BreakerReset)
	}
	return c, nil
}

// FileKey returns the key of the file this client reads.
func (c *Client) FileKey() string { return c.cfg.FileKey }

// File fetches and decodes the whole document of the configured file.
func (c *Client) File(ctx context.Context) (*Document, error) {
	u := fmt.Sprintf("%s/v1/files/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.FileKey))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	doc, err := DecodeDocument(body)
	if err != nil {
		return nil, fmt.Errorf("figma: decode file %s: %w", c.cfg.FileKey, err)
	}
	return doc, nil
}

type imagesResponse struct {
	Err    any                `json:"err"`
	Images map[string]*string `json:"images"`
}

// Image asks the upstream to render node id as PNG and returns the URL of the
// rendered image. An id the upstream omits (or maps to null) yields "".
func (c *Client) Image(ctx context.Context, id string) (string, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return "", &ErrCircuitOpen{Endpoint: "images"}
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("format", "png")
	u := fmt.Sprintf("%s/v1/images/%s?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.FileKey), q.Encode())

	body, err := c.get(ctx, u)
	if err != nil {
		c.recordImageResult(err)
		return "", err
	}
	c.recordImageResult(nil)

	var resp imagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("figma: decode images %s: %w", id, err)
	}
	if p := resp.Images[id]; p != nil {
		return *p, nil
	}
	return "", nil
}

// BreakerState reports the image breaker state. Without a breaker it is
// always closed.
func (c *Client) BreakerState() BreakerState {
	if c.breaker == nil {
		return BreakerClosed
	}
	return c.breaker.State()
}

// PurgeCache drops every cached response.
func (c *Client) PurgeCache() { c.cache.purge() }

// recordImageResult feeds the breaker. Rate limiting means the upstream is
// alive, so a 429 counts as neither success nor failure.
func (c *Client) recordImageResult(err error) {
	if c.breaker == nil {
		return
	}
	if err == nil {
		c.breaker.RecordSuccess()
		return
	}
	var se *StatusError
	if errors.As(err, &se) && se.RateLimited() {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	c.breaker.RecordFailure()
}

// get performs a cached GET. Only 2xx bodies are cached.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("figma: build request: %w", err)
	}
	req.Header.Set("X-Figma-Token", c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	key := cacheKey(req)
	if body, ok := c.cache.get(key); ok {
		c.logger.Debug("figma: cache hit", "url", u)
		return body, nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("figma: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("figma: read %s: %w", u, err)
	}
	c.cache.set(key, body)
	return body, nil
}
