// Package gallery serves the design-screen gallery: it loads screens from
// the upstream design file, renders the filterable grid, tracks what each
// open page shows, and feeds visible screens to the thumbnail scheduler.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/screengallery/figma"
	"github.com/hazyhaar/screengallery/gallery/internal/store"
	"github.com/hazyhaar/screengallery/idgen"
	"github.com/hazyhaar/screengallery/thumbs"
)

// State is the metadata load state.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

var (
	ErrUnknownView   = errors.New("gallery: unknown view")
	ErrScreenMissing = errors.New("gallery: screen not found")
	ErrNotReady      = errors.New("gallery: screens not loaded")
)

// Source provides the design document.
type Source interface {
	File(ctx context.Context) (*figma.Document, error)
	FileKey() string
}

// Snapshot is a consistent view of the loaded screens.
type Snapshot struct {
	State    State
	LoadID   string
	Screens  []figma.Screen
	Tags     figma.Tags
	Err      error
	LoadedAt time.Time
}

// Options holds the collaborators of a Gallery. Store may be nil.
type Options struct {
	Source    Source
	Scheduler *thumbs.Scheduler
	Store     *store.Store
	Logger    *slog.Logger
}

// Gallery is the gallery service.
type Gallery struct {
	cfg    Config
	source Source
	sched  *thumbs.Scheduler
	tiers  *thumbs.Tiers
	store  *store.Store
	views  *Views
	logger *slog.Logger

	newLoadID idgen.Generator
	policy    *bluemonday.Policy
	tmpl      *template.Template

	loadMu sync.Mutex // serializes loads

	mu       sync.RWMutex
	state    State
	loadID   string
	screens  []figma.Screen
	byID     map[string]int
	tags     figma.Tags
	loadErr  error
	loadedAt time.Time

	watchMu  sync.Mutex
	watchers map[string]map[string]func(url string) // screen id → listener key → fn

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func()
}

// New creates a gallery. Call Start to begin the first load.
func New(cfg Config, opts Options) (*Gallery, error) {
	cfg.defaults()
	if opts.Source == nil {
		return nil, errors.New("gallery: source is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("gallery: scheduler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	g := &Gallery{
		cfg:       cfg,
		source:    opts.Source,
		sched:     opts.Scheduler,
		tiers:     opts.Scheduler.Tiers(),
		store:     opts.Store,
		logger:    logger,
		newLoadID: idgen.UUIDv7(),
		policy:    bluemonday.StrictPolicy(),
		tmpl:      tmpl,
		state:     StateLoading,
		watchers:  make(map[string]map[string]func(string)),
	}
	g.views = NewViews(cfg.Visibility.ViewTTL, cfg.Visibility.MaxViews, g.unwatchAll, logger)
	opts.Scheduler.OnSettled(g.settled)
	return g, nil
}

// Start runs the first load and the view janitor in the background.
func (g *Gallery) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		if err := g.Load(ctx); err != nil {
			g.logger.Error("gallery: initial load failed", "error", err)
		}
	}()
	go func() {
		defer g.wg.Done()
		g.views.Run(ctx)
	}()
}

// Close stops background work started by Start.
func (g *Gallery) Close() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	for _, c := range g.closers {
		c()
	}
	g.closers = nil
}

// Views returns the live view registry.
func (g *Gallery) Views() *Views { return g.views }

// Config returns the effective configuration.
func (g *Gallery) Config() Config { return g.cfg }

// Load fetches the document, extracts screens and tags and replaces the
// current list. On failure the gallery enters the failed state.
func (g *Gallery) Load(ctx context.Context) error {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	id := g.newLoadID()
	g.mu.Lock()
	g.state = StateLoading
	g.loadID = id
	g.loadErr = nil
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.StartLoad(ctx, id, g.source.FileKey()); err != nil {
			g.logger.Warn("gallery: record load start", "load_id", id, "error", err)
		}
	}
	g.logger.Info("gallery: load started", "load_id", id)
	start := time.Now()

	doc, err := g.source.File(ctx)
	if err != nil {
		g.mu.Lock()
		g.state = StateFailed
		g.loadErr = err
		g.mu.Unlock()
		g.finishLoad(id, StateFailed, 0, err)
		return fmt.Errorf("gallery: load %s: %w", id, err)
	}

	screens := figma.Screens(doc, figma.ScreenOptions{
		PageName:   g.cfg.Upstream.PageName,
		CardPrefix: g.cfg.Upstream.CardPrefix,
	})
	tags := figma.AllTags(screens)
	byID := make(map[string]int, len(screens))
	ids := make([]string, len(screens))
	for i, s := range screens {
		byID[s.ID] = i
		ids[i] = s.ID
	}

	g.mu.Lock()
	g.state = StateReady
	g.screens = screens
	g.byID = byID
	g.tags = tags
	g.loadedAt = time.Now()
	g.mu.Unlock()

	seeded := g.tiers.Seed(ctx, ids)
	requested := 0
	g.views.Each(func(v *View) {
		v.reset(screenIDs(v.Filter.Apply(screens)))
		requested += g.requestVisible(ctx, v)
	})
	g.finishLoad(id, StateReady, len(screens), nil)

	g.logger.Info("gallery: load finished",
		"load_id", id,
		"screens", len(screens),
		"screen_types", len(tags.ScreenType),
		"ui_components", len(tags.UIComponents),
		"seeded", seeded,
		"requested", requested,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (g *Gallery) finishLoad(id string, st State, n int, err error) {
	if g.store == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	// The load context may already be cancelled; the record is still wanted.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.store.FinishLoad(ctx, id, string(st), n, msg); err != nil {
		g.logger.Warn("gallery: record load finish", "load_id", id, "error", err)
	}
}

// Snapshot returns the current load state and screens.
func (g *Gallery) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{
		State:    g.state,
		LoadID:   g.loadID,
		Screens:  g.screens,
		Tags:     g.tags,
		Err:      g.loadErr,
		LoadedAt: g.loadedAt,
	}
}

// Screen returns one loaded screen.
func (g *Gallery) Screen(id string) (figma.Screen, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.byID[id]
	if !ok {
		return figma.Screen{}, ErrScreenMissing
	}
	return g.screens[i], nil
}

// Thumbnail returns the best known URL of id for view v (nil for none):
// memory tier, then the view's display state, then the persistent tier.
func (g *Gallery) Thumbnail(ctx context.Context, v *View, id string) string {
	if url := g.tiers.GetMemory(id); url != "" {
		return url
	}
	if v != nil {
		if url := v.Display(id); url != "" {
			return url
		}
	}
	return g.tiers.GetPersistent(ctx, id)
}

// Observe applies a visibility report of view viewID. When the Visible-Set
// changed, every visible screen without a thumbnail is requested with
// priority. It returns how many ids were handed to the scheduler.
func (g *Gallery) Observe(ctx context.Context, viewID string, entries []Entry) (changed bool, requested int, err error) {
	v, ok := g.views.Get(viewID)
	if !ok {
		return false, 0, ErrUnknownView
	}
	if !v.Tracker.Observe(entries) {
		return false, 0, nil
	}
	return true, g.requestVisible(ctx, v), nil
}

// requestVisible asks for every visible screen of v that has no thumbnail
// yet and returns how many tasks were enqueued.
func (g *Gallery) requestVisible(ctx context.Context, v *View) int {
	requested := 0
	for _, id := range v.Tracker.Visible() {
		if v.Display(id) != "" {
			continue
		}
		if url := g.tiers.Lookup(ctx, id); url != "" {
			v.deliver(id, url)
			continue
		}
		if g.want(ctx, id, v.ID, func(url string) { v.deliver(id, url) }) {
			requested++
		}
	}
	return requested
}

// want registers fn as a listener for id and asks the scheduler for it. It
// reports whether a new task was enqueued; a listener for an id already
// queued or in flight is served by that task.
func (g *Gallery) want(ctx context.Context, id, key string, fn func(url string)) bool {
	g.watchMu.Lock()
	ls := g.watchers[id]
	if ls == nil {
		ls = make(map[string]func(string))
		g.watchers[id] = ls
	}
	ls[key] = fn
	g.watchMu.Unlock()

	if g.sched.Request(id, func(url string) { g.resolved(id, url) }, true) {
		return true
	}
	// Resolved between the caller's check and the request.
	if url := g.tiers.Lookup(ctx, id); url != "" {
		g.resolved(id, url)
	}
	return false
}

// resolved fans a scheduler result out to every listener of id and drops
// them. Views ignore an empty result; the next visibility change asks again.
func (g *Gallery) resolved(id, url string) {
	g.watchMu.Lock()
	ls := g.watchers[id]
	delete(g.watchers, id)
	g.watchMu.Unlock()

	for _, fn := range ls {
		fn(url)
	}
}

// settled runs once the scheduler released id. Listeners registered after
// the task fanned out but before the release are still waiting; serve them
// from the cache or with a new task.
func (g *Gallery) settled(id string) {
	g.watchMu.Lock()
	waiting := len(g.watchers[id])
	g.watchMu.Unlock()
	if waiting == 0 {
		return
	}
	if g.sched.Request(id, func(url string) { g.resolved(id, url) }, true) {
		g.logger.Debug("gallery: late listeners re-requested", "id", id, "listeners", waiting)
		return
	}
	if url := g.tiers.Lookup(context.Background(), id); url != "" {
		g.resolved(id, url)
	}
}

func (g *Gallery) unwatch(id, key string) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	if ls := g.watchers[id]; ls != nil {
		delete(ls, key)
		if len(ls) == 0 {
			delete(g.watchers, id)
		}
	}
}

// unwatchAll drops every listener registered under key.
func (g *Gallery) unwatchAll(key string) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	for id, ls := range g.watchers {
		delete(ls, key)
		if len(ls) == 0 {
			delete(g.watchers, id)
		}
	}
}

// RequestThumbnail asks for the thumbnail of one screen and waits for the
// result until ctx is done.
func (g *Gallery) RequestThumbnail(ctx context.Context, id string) (string, error) {
	if _, err := g.Screen(id); err != nil {
		return "", err
	}
	if url := g.tiers.Lookup(ctx, id); url != "" {
		return url, nil
	}

	key := "req_" + idgen.NanoID(8)()
	got := make(chan string, 1)
	g.want(ctx, id, key, func(url string) {
		select {
		case got <- url:
		default:
		}
	})
	defer g.unwatch(id, key)

	select {
	case url := <-got:
		return url, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ClearThumbnails forgets one thumbnail, or all of them when id is empty:
// both cache tiers, the upstream response cache and what open views show,
// so the next request fetches a fresh URL.
func (g *Gallery) ClearThumbnails(ctx context.Context, id string) error {
	var err error
	if id != "" {
		err = g.tiers.Delete(ctx, id)
	} else {
		err = g.tiers.Clear(ctx)
	}
	if p, ok := g.source.(interface{ PurgeCache() }); ok {
		p.PurgeCache()
	}
	g.views.Each(func(v *View) { v.forget(id) })
	return err
}

// Stats is a snapshot of the whole gallery.
type Stats struct {
	State            State         `json:"state"`
	LoadID           string        `json:"load_id"`
	Screens          int           `json:"screens"`
	Views            int           `json:"views"`
	MemoryThumbnails int           `json:"memory_thumbnails"`
	StoredThumbnails int           `json:"stored_thumbnails"`
	Breaker          string        `json:"breaker"`
	Scheduler        thumbs.Stats  `json:"scheduler"`
	RecentLoads      []*store.Load `json:"recent_loads,omitempty"`
}

// Stats collects gallery, cache and scheduler counters.
func (g *Gallery) Stats(ctx context.Context) Stats {
	snap := g.Snapshot()
	st := Stats{
		State:            snap.State,
		LoadID:           snap.LoadID,
		Screens:          len(snap.Screens),
		Views:            g.views.Len(),
		MemoryThumbnails: g.tiers.MemoryLen(),
		Breaker:          figma.BreakerClosed.String(),
		Scheduler:        g.sched.Stats(),
	}
	if b, ok := g.source.(interface{ BreakerState() figma.BreakerState }); ok {
		st.Breaker = b.BreakerState().String()
	}
	if g.store != nil {
		if n, err := g.store.Thumbnails().Count(ctx); err == nil {
			st.StoredThumbnails = n
		}
		if loads, err := g.store.RecentLoads(ctx, 5); err == nil {
			st.RecentLoads = loads
		}
	}
	return st
}

func screenIDs(screens []figma.Screen) []string {
	ids := make([]string, len(screens))
	for i, s := range screens {
		ids[i] = s.ID
	}
	return ids
}
