package gallery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeUpstream serves testFile and image URLs the way the design API does.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Figma-Token") != "tok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch {
		case r.URL.Path == "/v1/files/KEY":
			w.Write([]byte(testFile))
		case r.URL.Path == "/v1/images/KEY":
			id := r.URL.Query().Get("ids")
			json.NewEncoder(w).Encode(map[string]any{
				"images": map[string]string{id: thumbURL(id)},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpen_EndToEnd(t *testing.T) {
	// WHAT: Open wires store, upstream client and scheduler; thumbnails
	// survive into the SQLite tier and the next Open seeds them.
	up := fakeUpstream(t)
	dbPath := filepath.Join(t.TempDir(), "data", "gallery.db")

	cfg := Config{}
	cfg.Upstream.BaseURL = up.URL
	cfg.Upstream.FileKey = "KEY"
	cfg.Upstream.Token = "tok"
	cfg.Cache.DBPath = dbPath
	cfg.Thumbnails.BatchDelay = time.Millisecond
	cfg.Thumbnails.PollInterval = time.Millisecond

	g, err := Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.Start(ctx)
	if err := g.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	url, err := g.RequestThumbnail(ctx, "2:1")
	if err != nil || url != thumbURL("2:1") {
		t.Fatalf("RequestThumbnail = %q, %v", url, err)
	}
	if !g.Idle() {
		waitFor(t, "scheduler idle", g.Idle)
	}
	g.Close()

	g2, err := Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g2.Close()
	if err := g2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := g2.Thumbnail(ctx, nil, "2:1"); got != thumbURL("2:1") {
		t.Errorf("persisted thumbnail = %q", got)
	}
	if st := g2.Stats(ctx); st.StoredThumbnails != 1 || len(st.RecentLoads) != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestOpen_RequiresCredentials(t *testing.T) {
	t.Setenv("FIGMA_TOKEN", "")
	_, err := Open(Config{}, nil)
	if err == nil || !strings.Contains(err.Error(), "file_key") {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitReady_Failed(t *testing.T) {
	e := newTestEnv(t)
	e.source.failing.Store(true)
	e.g.Load(context.Background())
	if err := e.g.WaitReady(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}
