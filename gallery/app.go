package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/screengallery/figma"
	"github.com/hazyhaar/screengallery/gallery/internal/store"
	"github.com/hazyhaar/screengallery/thumbs"
)

// Open builds a gallery from cfg with its production collaborators: the
// SQLite store at cfg.Cache.DBPath, the upstream client and the thumbnail
// scheduler. Close releases all of them.
func Open(cfg Config, logger *slog.Logger) (*Gallery, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("gallery: open store: %w", err)
	}

	client, err := figma.NewClient(cfg.FigmaConfig(), nil, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	tiers := thumbs.NewTiers(st.Thumbnails(), logger)
	sched := thumbs.New(client, tiers, cfg.Thumbnails, logger)

	g, err := New(cfg, Options{Source: client, Scheduler: sched, Store: st, Logger: logger})
	if err != nil {
		sched.Close()
		st.Close()
		return nil, err
	}
	g.closers = append(g.closers, sched.Close, func() {
		if err := st.Close(); err != nil {
			logger.Warn("gallery: close store", "error", err)
		}
	})
	logger.Info("gallery: opened",
		"file_key", client.FileKey(),
		"db", cfg.Cache.DBPath,
		"page", cfg.Upstream.PageName)
	return g, nil
}

// Idle reports whether the thumbnail scheduler has nothing queued or in flight.
func (g *Gallery) Idle() bool {
	return g.sched.Idle()
}

// WaitReady blocks until the current load leaves the loading state. It
// returns the load error when the load failed.
func (g *Gallery) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := g.Snapshot()
		switch snap.State {
		case StateReady:
			return nil
		case StateFailed:
			return snap.Err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
