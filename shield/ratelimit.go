package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitRule limits requests whose method and path prefix match.
type RateLimitRule struct {
	Method      string        `yaml:"method"`
	PathPrefix  string        `yaml:"path_prefix"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window, per-IP, per-rule limiter. The browser posts
// visibility changes on every scroll, so the rules guard the scheduler
// from a runaway page rather than from hostile traffic.
type RateLimiter struct {
	rules   []RateLimitRule
	buckets sync.Map
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Rules with a zero MaxRequests or Window
// are ignored.
func NewRateLimiter(rules []RateLimitRule) *RateLimiter {
	rl := &RateLimiter{now: time.Now}
	for _, r := range rules {
		if r.MaxRequests > 0 && r.Window > 0 {
			rl.rules = append(rl.rules, r)
		}
	}
	return rl
}

// StartGC drops expired buckets every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) match(r *http.Request) *RateLimitRule {
	for i := range rl.rules {
		rule := &rl.rules[i]
		if rule.Method != "" && rule.Method != r.Method {
			continue
		}
		if strings.HasPrefix(r.URL.Path, rule.PathPrefix) {
			return rule
		}
	}
	return nil
}

func (rl *RateLimiter) allow(ip string, rule *RateLimitRule) bool {
	key := ip + "|" + rule.Method + " " + rule.PathPrefix
	now := rl.now()

	val, loaded := rl.buckets.LoadOrStore(key, &bucket{count: 1, resetAt: now.Add(rule.Window)})
	if !loaded {
		return true
	}
	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(rule.Window)
		return true
	}
	b.count++
	return b.count <= rule.MaxRequests
}

// Middleware enforces the rules. Blocked requests get 429 with a JSON body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := rl.match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := ExtractIP(r)
		if rl.allow(ip, rule) {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "rule", rule.PathPrefix)
		w.Header().Set("Retry-After", "1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
