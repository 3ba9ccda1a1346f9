package browser

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Timeout != 5*time.Minute || c.ScrollStep != 800 || c.ScrollPause != 250*time.Millisecond {
		t.Errorf("defaults = %+v", c)
	}
	if len(c.BlockResources) != 3 || c.Logger == nil {
		t.Errorf("block = %v", c.BlockResources)
	}

	c = Config{BlockResources: []string{}}
	c.defaults()
	if len(c.BlockResources) != 0 {
		t.Error("explicit empty block list was replaced")
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true, "media": true}
	tests := []struct {
		typ  string
		want bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", true},
		{"Stylesheet", false},
		{"Document", false},
		{"Script", false},
		{"XHR", false},
		{"Fetch", false},
		{"EventSource", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.typ); got != tt.want {
			t.Errorf("shouldBlock(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
	// WHY: the page script and its API calls must never be blocked, even
	// when a caller lists them.
	if shouldBlock(map[string]bool{"script": true, "fetch": true}, "Script") {
		t.Error("script blocked")
	}
}

func TestWaitIdle(t *testing.T) {
	var calls atomic.Int32
	idle := func() bool { return calls.Add(1) >= 3 }

	if !waitIdle(context.Background(), idle, time.Millisecond) {
		t.Fatal("expected drained")
	}
	if n := calls.Load(); n != 4 {
		t.Errorf("idle called %d times, want 4 (two consecutive idle checks)", n)
	}

	if !waitIdle(context.Background(), nil, time.Millisecond) {
		t.Error("nil idle should report drained")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if waitIdle(ctx, func() bool { return false }, time.Millisecond) {
		t.Error("never-idle reported drained")
	}
}
