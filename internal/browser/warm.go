// Package browser drives a headless Chrome through the served gallery so the
// page's own visibility reporting pre-fetches every thumbnail.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures a warm-up run.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	RemoteURL string

	// Timeout bounds the whole run. Default: 5m.
	Timeout time.Duration

	// ScrollStep is the distance scrolled per step in pixels. Default: 800.
	ScrollStep int

	// ScrollPause is the wait after each step so the page can report
	// visibility. Default: 250ms.
	ScrollPause time.Duration

	// IdlePoll is how often the idle check runs once the bottom is reached.
	// Default: 500ms.
	IdlePoll time.Duration

	// BlockResources lists resource types the tab never loads.
	// Default: images, fonts, media.
	BlockResources []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 800
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = 250 * time.Millisecond
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 500 * time.Millisecond
	}
	if c.BlockResources == nil {
		c.BlockResources = []string{"images", "fonts", "media"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Report summarises a warm-up run.
type Report struct {
	Cards    int           `json:"cards"`
	Scrolls  int           `json:"scrolls"`
	Resolved int           `json:"resolved"`
	Drained  bool          `json:"drained"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Warm opens pageURL, scrolls to the bottom and waits until idle reports
// that no thumbnail work is left. idle may be nil.
func Warm(ctx context.Context, pageURL string, idle func() bool, cfg Config) (*Report, error) {
	cfg.defaults()
	log := cfg.Logger
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	b, cleanup, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	if len(cfg.BlockResources) > 0 {
		if err := applyResourceBlocking(page, cfg.BlockResources); err != nil {
			log.Warn("browser: resource blocking failed", "error", err)
		}
	}

	p := page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		log.Warn("browser: wait load", "url", pageURL, "error", err)
	}

	rep := &Report{}
	if res, err := p.Eval(`() => document.querySelectorAll('article.card').length`); err == nil {
		rep.Cards = res.Value.Int()
	}
	log.Info("browser: warming", "url", pageURL, "cards", rep.Cards)

	for {
		res, err := p.Eval(`(step) => {
			window.scrollBy(0, step);
			return window.scrollY + window.innerHeight >= document.documentElement.scrollHeight;
		}`, cfg.ScrollStep)
		if err != nil {
			return rep, fmt.Errorf("browser: scroll: %w", err)
		}
		rep.Scrolls++
		if !sleepCtx(ctx, cfg.ScrollPause) {
			return rep, ctx.Err()
		}
		if res.Value.Bool() {
			break
		}
	}

	rep.Drained = waitIdle(ctx, idle, cfg.IdlePoll)

	if res, err := page.Context(context.Background()).Eval(
		`() => document.querySelectorAll('article.card .thumb img').length`); err == nil {
		rep.Resolved = res.Value.Int()
	}
	rep.Elapsed = time.Since(start)

	log.Info("browser: warm done",
		"cards", rep.Cards, "resolved", rep.Resolved,
		"scrolls", rep.Scrolls, "drained", rep.Drained, "elapsed", rep.Elapsed)
	if !rep.Drained && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return rep, fmt.Errorf("browser: queue not drained after %s", cfg.Timeout)
	}
	return rep, nil
}

// connect launches or attaches to Chrome. The returned func releases it.
func connect(cfg Config) (*rod.Browser, func(), error) {
	log := cfg.Logger
	wsURL := cfg.RemoteURL
	var l *launcher.Launcher

	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l = launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		log.Debug("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}

	cleanup := func() {
		if err := b.Close(); err != nil {
			log.Debug("browser: close", "error", err)
		}
		if l != nil {
			l.Cleanup()
		}
	}
	return b, cleanup, nil
}

// waitIdle polls idle until it holds on two consecutive checks, so a
// visibility report still in flight is not mistaken for an empty queue.
func waitIdle(ctx context.Context, idle func() bool, poll time.Duration) bool {
	if idle == nil {
		return true
	}
	streak := 0
	for {
		if idle() {
			streak++
			if streak >= 2 {
				return true
			}
		} else {
			streak = 0
		}
		if !sleepCtx(ctx, poll) {
			return false
		}
	}
}

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
