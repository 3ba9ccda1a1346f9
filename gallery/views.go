package gallery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/screengallery/idgen"
)

// Event is a thumbnail resolved for a view.
type Event struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// View is one rendered gallery page.
type View struct {
	ID      string
	Filter  Filter
	Tracker *Tracker

	mu       sync.Mutex
	ids      []string
	display  map[string]string
	pending  []Event
	notify   chan struct{}
	lastSeen time.Time
	streams  int
}

func newView(id string, f Filter, ids []string, now time.Time) *View {
	return &View{
		ID:       id,
		Filter:   f,
		Tracker:  NewTracker(ids),
		ids:      ids,
		display:  make(map[string]string),
		notify:   make(chan struct{}, 1),
		lastSeen: now,
	}
}

// IDs returns the screen ids the view rendered.
func (v *View) IDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ids
}

// Display returns the URL this view already received for id.
func (v *View) Display(id string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display[id]
}

// deliver records url for id and queues an event, once per distinct URL.
func (v *View) deliver(id, url string) {
	if url == "" {
		return
	}
	v.mu.Lock()
	if v.display[id] == url {
		v.mu.Unlock()
		return
	}
	v.display[id] = url
	v.pending = append(v.pending, Event{ID: id, URL: url})
	v.mu.Unlock()

	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// drain returns and clears the pending events.
func (v *View) drain() []Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	ev := v.pending
	v.pending = nil
	return ev
}

// forget drops the displayed URL of id, or of every screen when id is empty.
func (v *View) forget(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id == "" {
		clear(v.display)
		return
	}
	delete(v.display, id)
}

func (v *View) reset(ids []string) {
	v.mu.Lock()
	v.ids = ids
	v.mu.Unlock()
	v.Tracker.Reset(ids)
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) streamOpened() {
	v.mu.Lock()
	v.streams++
	v.mu.Unlock()
}

func (v *View) streamClosed(now time.Time) {
	v.mu.Lock()
	v.streams--
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.streams > 0 {
		return 0
	}
	return now.Sub(v.lastSeen)
}

// Views is the registry of live page views.
type Views struct {
	mu    sync.Mutex
	views map[string]*View
	order []string // creation order, for eviction

	ttl      time.Duration
	maxViews int
	newID    idgen.Generator
	now      func() time.Time
	onRemove func(id string)
	logger   *slog.Logger
}

// NewViews creates a registry. onRemove is called for every expired or
// evicted view.
func NewViews(ttl time.Duration, maxViews int, onRemove func(id string), logger *slog.Logger) *Views {
	if logger == nil {
		logger = slog.Default()
	}
	return &Views{
		views:    make(map[string]*View),
		ttl:      ttl,
		maxViews: maxViews,
		newID:    idgen.Prefixed("v_", idgen.NanoID(12)),
		now:      time.Now,
		onRemove: onRemove,
		logger:   logger,
	}
}

// Create registers a view of ids rendered with filter f.
func (r *Views) Create(f Filter, ids []string) *View {
	v := newView(r.newID(), f, ids, r.now())

	var evicted []string
	r.mu.Lock()
	r.views[v.ID] = v
	r.order = append(r.order, v.ID)
	for r.maxViews > 0 && len(r.views) > r.maxViews {
		oldest := r.order[0]
		r.order = r.order[1:]
		if _, ok := r.views[oldest]; ok {
			delete(r.views, oldest)
			evicted = append(evicted, oldest)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Debug("gallery: view evicted", "view", id)
		r.removed(id)
	}
	return v
}

// Get returns a live view and marks it seen.
func (r *Views) Get(id string) (*View, bool) {
	r.mu.Lock()
	v, ok := r.views[id]
	r.mu.Unlock()
	if ok {
		v.touch(r.now())
	}
	return v, ok
}

// Len returns the number of live views.
func (r *Views) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Each calls fn for every live view.
func (r *Views) Each(fn func(*View)) {
	r.mu.Lock()
	vs := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		vs = append(vs, v)
	}
	r.mu.Unlock()
	for _, v := range vs {
		fn(v)
	}
}

// Sweep removes views idle for longer than the TTL and returns how many.
func (r *Views) Sweep() int {
	now := r.now()
	var expired []string

	r.mu.Lock()
	for id, v := range r.views {
		if v.idleSince(now) > r.ttl {
			delete(r.views, id)
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		kept := r.order[:0]
		for _, id := range r.order {
			if _, ok := r.views[id]; ok {
				kept = append(kept, id)
			}
		}
		r.order = kept
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.removed(id)
	}
	return len(expired)
}

// Run sweeps expired views until ctx is cancelled.
func (r *Views) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("gallery: views expired", "count", n)
			}
		}
	}
}

func (r *Views) removed(id string) {
	if r.onRemove != nil {
		r.onRemove(id)
	}
}
