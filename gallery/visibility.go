package gallery

import (
	"slices"
	"sync"
)

// Entry is one intersection change reported by the browser.
type Entry struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

// Tracker holds the Visible-Set of one page view: the subscribed screen ids
// currently inside the extended viewport, in the order they became visible.
type Tracker struct {
	mu         sync.Mutex
	subscribed map[string]bool
	visible    []string
}

// NewTracker subscribes a tracker to ids.
func NewTracker(ids []string) *Tracker {
	t := &Tracker{}
	t.Reset(ids)
	return t
}

// Observe applies intersection entries and reports whether the set changed.
// Entries for ids the tracker is not subscribed to are ignored.
func (t *Tracker) Observe(entries []Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, e := range entries {
		if !t.subscribed[e.ID] {
			continue
		}
		i := slices.Index(t.visible, e.ID)
		switch {
		case e.Visible && i < 0:
			t.visible = append(t.visible, e.ID)
			changed = true
		case !e.Visible && i >= 0:
			t.visible = slices.Delete(t.visible, i, i+1)
			changed = true
		}
	}
	return changed
}

// Reset subscribes the tracker to a new screen list. Visible ids that are no
// longer listed are dropped.
func (t *Tracker) Reset(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subscribed = make(map[string]bool, len(ids))
	for _, id := range ids {
		t.subscribed[id] = true
	}
	t.visible = slices.DeleteFunc(t.visible, func(id string) bool {
		return !t.subscribed[id]
	})
}

// Visible returns a copy of the Visible-Set in insertion order.
func (t *Tracker) Visible() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.visible)
}

// IsVisible reports whether id is in the Visible-Set.
func (t *Tracker) IsVisible(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.visible, id)
}
