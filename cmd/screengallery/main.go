// Command screengallery serves the filterable gallery of app screens kept in
// a design file, with lazily fetched thumbnails.
//
// Usage:
//
//	screengallery -config gallery.yaml          # serve
//	screengallery -config gallery.yaml -warm    # serve, pre-fetch every thumbnail, exit
//	screengallery -config gallery.yaml -clear-thumbnails
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/screengallery/gallery"
	"github.com/hazyhaar/screengallery/internal/browser"
	"github.com/hazyhaar/screengallery/shield"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to gallery.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	clearThumbs := flag.Bool("clear-thumbnails", false, "clear cached thumbnails and exit")
	warm := flag.Bool("warm", false, "open the gallery in headless Chrome, fetch every thumbnail and exit")
	chromeURL := flag.String("chrome", "", "DevTools WebSocket URL for -warm (default: launch a local Chrome)")
	flag.Parse()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *clearThumbs, *warm, *chromeURL); err != nil {
		logger.Error("screengallery: fatal", "error", err)
		os.Exit(1)
	}
}

func resolveConfig(path string) (*gallery.Config, error) {
	if path != "" {
		return gallery.LoadConfigFile(path)
	}
	return gallery.DefaultConfig(), nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func run(ctx context.Context, logger *slog.Logger, cfg *gallery.Config, clearThumbs, warm bool, chromeURL string) error {
	g, err := gallery.Open(*cfg, logger)
	if err != nil {
		return err
	}
	defer g.Close()

	// One-shot: clear thumbnails.
	if clearThumbs {
		if err := g.ClearThumbnails(ctx, ""); err != nil {
			return fmt.Errorf("clear thumbnails: %w", err)
		}
		logger.Info("screengallery: thumbnails cleared")
		return nil
	}

	g.Start(ctx)

	rl := shield.NewRateLimiter(cfg.RateLimit)
	rl.StartGC(ctx.Done(), 5*time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(shield.DefaultHeaders(), rl) {
		r.Use(mw)
	}
	g.Routes(r)

	if cfg.MCP.Enabled {
		srv := mcp.NewServer(&mcp.Implementation{Name: cfg.MCP.Name, Version: version}, nil)
		g.RegisterMCP(srv)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
		logger.Info("screengallery: mcp enabled", "path", "/mcp")
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	httpSrv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: the event stream stays open.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("screengallery: listening", "addr", ln.Addr().String(), "version", version)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if warm {
		err = runWarm(ctx, logger, g, "http://"+ln.Addr().String()+"/", chromeURL)
	} else {
		select {
		case <-ctx.Done():
		case err = <-errCh:
		}
	}

	logger.Info("screengallery: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutCtx); serr != nil {
		logger.Warn("screengallery: shutdown", "error", serr)
	}
	return err
}

func runWarm(ctx context.Context, logger *slog.Logger, g *gallery.Gallery, pageURL, chromeURL string) error {
	if err := g.WaitReady(ctx); err != nil {
		return fmt.Errorf("warm: load: %w", err)
	}
	rep, err := browser.Warm(ctx, pageURL, g.Idle, browser.Config{
		RemoteURL: chromeURL,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("warm: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*browser.Report
		Stats gallery.Stats `json:"stats"`
	}{rep, g.Stats(ctx)})
}
