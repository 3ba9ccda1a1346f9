package figma

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	body     []byte
	storedAt time.Time
}

// responseCache keeps successful upstream bodies for a short TTL. Keys are
// the request URL plus its serialized options, so two credentials never
// share an entry.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, storedAt: c.now()}
}

func (c *responseCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey serializes the request the way the cache sees it:
// "<url>-<method>|<k1>=<v1>|<k2>=<v2>" with header names sorted.
func cacheKey(req *http.Request) string {
	names := make([]string, 0, len(req.Header))
	for k := range req.Header {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(req.URL.String())
	b.WriteString("-")
	b.WriteString(req.Method)
	for _, k := range names {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.Join(req.Header[k], ","))
	}
	return b.String()
}
