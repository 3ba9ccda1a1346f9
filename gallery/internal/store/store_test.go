package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/screengallery/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestThumbnails_RoundTrip(t *testing.T) {
	s := testStore(t)
	th := s.Thumbnails()
	ctx := context.Background()

	got, err := th.Get(ctx, "1:2")
	if err != nil || got != "" {
		t.Fatalf("get missing: %q, %v", got, err)
	}

	if err := th.Set(ctx, "1:2", "https://img/a.png"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := th.Set(ctx, "1:2", "https://img/b.png"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = th.Get(ctx, "1:2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "https://img/b.png" {
		t.Errorf("url: got %q, want %q", got, "https://img/b.png")
	}

	var key string
	if err := s.DB.QueryRow(`SELECT cache_key FROM thumbnail_cache`).Scan(&key); err != nil {
		t.Fatal(err)
	}
	if key != "figma-thumb-1:2" {
		t.Errorf("key: got %q", key)
	}
}

func TestThumbnails_DeleteAndClear(t *testing.T) {
	s := testStore(t)
	th := s.Thumbnails()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := th.Set(ctx, id, "u-"+id); err != nil {
			t.Fatal(err)
		}
	}
	if err := th.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if n, _ := th.Count(ctx); n != 2 {
		t.Errorf("count after delete: got %d, want 2", n)
	}
	if err := th.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := th.Count(ctx); n != 0 {
		t.Errorf("count after clear: got %d, want 0", n)
	}
}

func TestThumbnails_SurvivesReopen(t *testing.T) {
	// WHAT: A stored URL is still there after the database is reopened.
	// WHY: The persistent tier must outlive the process.
	path := filepath.Join(t.TempDir(), "sub", "gallery.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Thumbnails().Set(ctx, "9:9", "https://img/9.png"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Thumbnails().Get(ctx, "9:9")
	if err != nil || got != "https://img/9.png" {
		t.Errorf("after reopen: %q, %v", got, err)
	}
}

func TestLoadHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.StartLoad(ctx, "load-1", "KEY"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishLoad(ctx, "load-1", "ready", 12, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.StartLoad(ctx, "load-2", "KEY"); err != nil {
		t.Fatal(err)
	}

	loads, err := s.RecentLoads(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(loads) != 2 {
		t.Fatalf("loads: got %d, want 2", len(loads))
	}
	if loads[0].ID != "load-2" || loads[0].Status != "loading" || loads[0].FinishedAt != nil {
		t.Errorf("newest: %+v", loads[0])
	}
	if loads[1].Status != "ready" || loads[1].ScreenCount != 12 || loads[1].FinishedAt == nil {
		t.Errorf("oldest: %+v", loads[1])
	}
}
