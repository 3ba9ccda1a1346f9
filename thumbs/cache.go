package thumbs

import (
	"context"
	"log/slog"
	"sync"
)

// Persistent is the durable key/value tier. Keys are screen ids; the
// implementation owns its key namespace.
type Persistent interface {
	Get(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, id, url string) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Tiers is the two-tier thumbnail cache: an in-memory map for the life of the
// process in front of an optional persistent store. Persistent errors are
// logged and treated as a miss.
type Tiers struct {
	mu     sync.RWMutex
	memory map[string]string

	persistent Persistent
	logger     *slog.Logger
}

// NewTiers creates a cache. persistent may be nil.
func NewTiers(persistent Persistent, logger *slog.Logger) *Tiers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiers{
		memory:     make(map[string]string),
		persistent: persistent,
		logger:     logger,
	}
}

func (t *Tiers) GetMemory(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.memory[id]
}

func (t *Tiers) SetMemory(id, url string) {
	if url == "" {
		return
	}
	t.mu.Lock()
	t.memory[id] = url
	t.mu.Unlock()
}

func (t *Tiers) GetPersistent(ctx context.Context, id string) string {
	if t.persistent == nil {
		return ""
	}
	url, err := t.persistent.Get(ctx, id)
	if err != nil {
		t.logger.Debug("thumbs: persistent get failed", "id", id, "error", err)
		return ""
	}
	return url
}

func (t *Tiers) SetPersistent(ctx context.Context, id, url string) {
	if t.persistent == nil || url == "" {
		return
	}
	if err := t.persistent.Set(ctx, id, url); err != nil {
		t.logger.Debug("thumbs: persistent set failed", "id", id, "error", err)
	}
}

// Lookup returns the memory value, falling back to the persistent one.
func (t *Tiers) Lookup(ctx context.Context, id string) string {
	if url := t.GetMemory(id); url != "" {
		return url
	}
	return t.GetPersistent(ctx, id)
}

// Resolved reports whether either tier holds a URL for id.
func (t *Tiers) Resolved(ctx context.Context, id string) bool {
	return t.Lookup(ctx, id) != ""
}

// Seed copies persisted URLs of ids into memory and returns how many were
// found.
func (t *Tiers) Seed(ctx context.Context, ids []string) int {
	n := 0
	for _, id := range ids {
		if t.GetMemory(id) != "" {
			continue
		}
		if url := t.GetPersistent(ctx, id); url != "" {
			t.SetMemory(id, url)
			n++
		}
	}
	return n
}

// Delete forgets id in both tiers.
func (t *Tiers) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	delete(t.memory, id)
	t.mu.Unlock()
	if t.persistent == nil {
		return nil
	}
	return t.persistent.Delete(ctx, id)
}

// Clear empties both tiers.
func (t *Tiers) Clear(ctx context.Context) error {
	t.mu.Lock()
	clear(t.memory)
	t.mu.Unlock()
	if t.persistent == nil {
		return nil
	}
	return t.persistent.Clear(ctx)
}

// MemoryLen returns the number of URLs held in memory.
func (t *Tiers) MemoryLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.memory)
}
