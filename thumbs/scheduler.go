// Package thumbs schedules thumbnail fetches against a rate-limited image
// endpoint.
//
// Requests are deduplicated per id, visible ids jump the queue, at most
// MaxConcurrentBatches batches of BatchSize run at once, and 429 responses
// are retried with a fixed delay. Results land in a two-tier cache (Tiers).
package thumbs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the scheduler behaviour.
type Config struct {
	// MaxConcurrentBatches caps the number of batches running at once.
	MaxConcurrentBatches int `yaml:"max_concurrent_batches"`
	// BatchSize is the maximum number of tasks pulled per dispatch.
	BatchSize int `yaml:"batch_size"`
	// BatchDelay is the pause after each dispatch.
	BatchDelay time.Duration `yaml:"batch_delay"`
	// PollInterval is the wait while the batch cap is reached.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxRetries bounds retries of a rate-limited fetch. Negative disables
	// retries.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the fixed wait before a retry.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

func (c *Config) defaults() {
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 300 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 5
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 3 * time.Second
	}
}

// Fetcher resolves one id to a thumbnail URL.
type Fetcher interface {
	Image(ctx context.Context, id string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (string, error)

func (f FetcherFunc) Image(ctx context.Context, id string) (string, error) { return f(ctx, id) }

// rateLimited is implemented by upstream errors that know they are a 429.
type rateLimited interface {
	RateLimited() bool
}

func isRateLimited(err error) bool {
	var rl rateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

type task struct {
	id         string
	onResolved func(url string)
}

// Stats is a point-in-time snapshot of the scheduler.
type Stats struct {
	Queued        int   `json:"queued"`
	InFlight      int   `json:"in_flight"`
	ActiveBatches int   `json:"active_batches"`
	Processing    bool  `json:"processing"`
	Fetches       int64 `json:"fetches"`
	RateLimited   int64 `json:"rate_limited"`
	Failures      int64 `json:"failures"`
	Resolved      int64 `json:"resolved"`
}

// Scheduler owns the pending queue and dispatches fetch batches.
type Scheduler struct {
	config Config
	fetch  Fetcher
	tiers  *Tiers
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	queue      []*task
	queued     map[string]bool
	inFlight   map[string]bool
	active     int
	processing bool
	closed     bool
	onSettled  func(id string)

	fetches     atomic.Int64
	rateLimited atomic.Int64
	failures    atomic.Int64
	resolved    atomic.Int64

	// onDispatch observes each dispatched batch. Tests only.
	onDispatch func(ids []string)
}

// New creates a scheduler. Close must be called to release it.
func New(fetch Fetcher, tiers *Tiers, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if tiers == nil {
		tiers = NewTiers(nil, logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:   cfg,
		fetch:    fetch,
		tiers:    tiers,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		queued:   make(map[string]bool),
		inFlight: make(map[string]bool),
	}
}

// Tiers returns the cache the scheduler writes to.
func (s *Scheduler) Tiers() *Tiers { return s.tiers }

// OnSettled sets fn to run after a task's in-flight mark is cleared, once
// its callback has returned. A Request for the id made from fn is accepted.
func (s *Scheduler) OnSettled(fn func(id string)) {
	s.mu.Lock()
	s.onSettled = fn
	s.mu.Unlock()
}

// Pending reports whether id is queued or in flight.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[id] || s.inFlight[id]
}

// Request enqueues a fetch for id. It is a no-op, and onResolved is never
// called for this call, when id is already queued, in flight, or resolved in
// either cache tier. Priority requests go to the head of the queue.
// It reports whether a task was enqueued.
func (s *Scheduler) Request(id string, onResolved func(url string), priority bool) bool {
	if id == "" {
		return false
	}
	if s.tiers.GetPersistent(s.ctx, id) != "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.queued[id] || s.inFlight[id] {
		return false
	}
	if s.tiers.GetMemory(id) != "" {
		return false
	}

	t := &task{id: id, onResolved: onResolved}
	if priority {
		s.queue = append(s.queue, nil)
		copy(s.queue[1:], s.queue)
		s.queue[0] = t
	} else {
		s.queue = append(s.queue, t)
	}
	s.queued[id] = true

	if !s.processing {
		s.processing = true
		s.wg.Add(1)
		go s.loop()
	}
	return true
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	s.logger.Debug("thumbs: processing started")

	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.processing = false
			s.mu.Unlock()
			s.logger.Debug("thumbs: processing idle")
			return
		}
		if s.active >= s.config.MaxConcurrentBatches {
			s.mu.Unlock()
			sleepCtx(s.ctx, s.config.PollInterval)
			continue
		}

		batch := s.pullLocked()
		if len(batch) == 0 {
			s.mu.Unlock()
			sleepCtx(s.ctx, s.config.PollInterval)
			continue
		}
		s.active++
		s.wg.Add(1)
		s.mu.Unlock()

		ids := make([]string, len(batch))
		for i, t := range batch {
			ids[i] = t.id
		}
		if s.onDispatch != nil {
			s.onDispatch(ids)
		}
		s.logger.Debug("thumbs: batch dispatched", "size", len(batch))
		go s.runBatch(batch)

		sleepCtx(s.ctx, s.config.BatchDelay)
	}
}

// pullLocked takes up to BatchSize tasks from the head of the queue, drops
// those whose id is already in flight and marks the rest in flight.
// Must be called with mu held.
func (s *Scheduler) pullLocked() []*task {
	n := min(s.config.BatchSize, len(s.queue))
	head := s.queue[:n]

	batch := make([]*task, 0, n)
	for _, t := range head {
		delete(s.queued, t.id)
		if s.inFlight[t.id] {
			continue
		}
		s.inFlight[t.id] = true
		batch = append(batch, t)
	}
	// Release consumed slots; the backing array outlives them.
	clear(head)
	if n == len(s.queue) {
		s.queue = nil
	} else {
		s.queue = s.queue[n:]
	}
	return batch
}

func (s *Scheduler) runBatch(batch []*task) {
	defer s.wg.Done()

	var wg sync.WaitGroup
	for _, t := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := s.fetchWithRetry(t.id, 0)
			if t.onResolved != nil {
				t.onResolved(url)
			}
			if url != "" {
				s.tiers.SetMemory(t.id, url)
			}
			s.mu.Lock()
			delete(s.inFlight, t.id)
			settled := s.onSettled
			s.mu.Unlock()
			if settled != nil {
				settled(t.id)
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// fetchWithRetry returns the persisted URL when there is one, otherwise asks
// the upstream. A rate-limited answer is retried after RetryDelay until
// MaxRetries is reached; any other failure yields "".
func (s *Scheduler) fetchWithRetry(id string, attempt int) string {
	if url := s.tiers.GetPersistent(s.ctx, id); url != "" {
		return url
	}

	s.fetches.Add(1)
	url, err := s.fetch.Image(s.ctx, id)
	if err != nil {
		if isRateLimited(err) {
			s.rateLimited.Add(1)
			if attempt < s.config.MaxRetries {
				s.logger.Debug("thumbs: rate limited, retrying",
					"id", id, "attempt", attempt+1, "delay", s.config.RetryDelay)
				if !sleepCtx(s.ctx, s.config.RetryDelay) {
					return ""
				}
				return s.fetchWithRetry(id, attempt+1)
			}
		}
		s.failures.Add(1)
		s.logger.Warn("thumbs: fetch failed", "id", id, "attempt", attempt, "error", err)
		return ""
	}
	if url == "" {
		return ""
	}

	s.tiers.SetPersistent(s.ctx, id, url)
	s.resolved.Add(1)
	return url
}

// Stats returns a snapshot of the queue and counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Queued:        len(s.queue),
		InFlight:      len(s.inFlight),
		ActiveBatches: s.active,
		Processing:    s.processing,
	}
	s.mu.Unlock()
	st.Fetches = s.fetches.Load()
	st.RateLimited = s.rateLimited.Load()
	st.Failures = s.failures.Load()
	st.Resolved = s.resolved.Load()
	return st
}

// Idle reports whether nothing is queued or in flight.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && len(s.inFlight) == 0 && s.active == 0
}

// Close stops accepting requests, drops queued tasks and waits for running
// batches. Pending retry sleeps are cut short and resolve to "".
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	clear(s.queued)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("thumbs: scheduler closed", "dropped", dropped)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
