package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/screengallery/figma"
	"github.com/hazyhaar/screengallery/kit"
	"github.com/hazyhaar/screengallery/shield"
)

const sseKeepAlive = 25 * time.Second

// Routes registers the gallery pages and API on r.
func (g *Gallery) Routes(r chi.Router) {
	r.Get("/", g.handleIndex)
	r.Get("/screens/{id}", g.handleModal)
	r.Post("/reload", g.handleReload)
	r.Handle("/static/*", http.StripPrefix("/static/", staticHandler()))
	r.Get("/healthz", g.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/screens", g.handleListScreens)
		r.Get("/screens/{id}", g.handleGetScreen)
		r.Get("/tags", g.handleTags)
		r.Get("/stats", g.handleStats)
		r.Post("/views/{view}/visibility", g.handleVisibility)
		r.Get("/views/{view}/events", g.handleEvents)
		r.Post("/thumbnails/clear", g.handleClearThumbnails)
	})
}

func staticHandler() http.Handler {
	fsrv := http.FileServerFS(staticFiles())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fsrv.ServeHTTP(w, r)
	})
}

func (g *Gallery) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := g.Snapshot()
	filter := ParseFilter(r.URL.Query())

	p := pageData{
		Title:      g.cfg.Server.Title,
		State:      snap.State,
		Flash:      shield.GetFlash(r.Context()),
		RootMargin: g.cfg.Visibility.RootMarginPx,
	}

	switch snap.State {
	case StateFailed:
		p.Error = errorText(snap.Err)
	case StateReady:
		shown := filter.Apply(snap.Screens)
		v := g.views.Create(filter, screenIDs(shown))
		p.ViewID = v.ID
		p.Total = len(shown)
		p.Filters = []dropdownData{
			dropdown("Screen", ParamScreenType, g.cleanAll(snap.Tags.ScreenType), filter.ScreenTypes, filter),
			dropdown("UI Components", ParamUIComponents, g.cleanAll(snap.Tags.UIComponents), filter.UIComponents, filter),
		}
		p.Cards = make([]cardData, len(shown))
		for i, s := range shown {
			p.Cards[i] = cardData{
				ID:        s.ID,
				Title:     g.clean(s.ScreenTitle),
				Thumbnail: safeImageURL(g.Thumbnail(r.Context(), v, s.ID)),
			}
		}
		shield.GetLogger(r.Context()).Debug("gallery: view created",
			"view", v.ID, "screens", len(shown))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := g.renderPage(w, p); err != nil {
		shield.GetLogger(r.Context()).Error("gallery: render page", "error", err)
	}
}

func (g *Gallery) handleModal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := g.Screen(id)
	if err != nil {
		http.Error(w, "screen not found", http.StatusNotFound)
		return
	}
	var v *View
	if viewID := r.URL.Query().Get("view"); viewID != "" {
		v, _ = g.views.Get(viewID)
	}
	out, err := g.renderModal(s, safeImageURL(g.Thumbnail(r.Context(), v, id)))
	if err != nil {
		shield.GetLogger(r.Context()).Error("gallery: render modal", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, out)
}

func (g *Gallery) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := g.Load(r.Context()); err != nil {
		shield.GetLogger(r.Context()).Warn("gallery: reload failed", "error", err)
		shield.SetFlash(w, "error", "reload failed")
	} else {
		shield.SetFlash(w, "success", fmt.Sprintf("%d screens loaded", len(g.Snapshot().Screens)))
	}
	http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
}

// redirectTarget returns the same-origin page the reload came from, or "/".
func redirectTarget(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || ref.Path != "/" {
		return "/"
	}
	if ref.RawQuery == "" {
		return "/"
	}
	return "/?" + ref.RawQuery
}

func (g *Gallery) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(g.Snapshot().State)})
}

// screenJSON is a screen with its best known thumbnail.
type screenJSON struct {
	figma.Screen
	Thumbnail string `json:"thumbnail,omitempty"`
}

type screenList struct {
	LoadID  string       `json:"load_id"`
	State   State        `json:"state"`
	Total   int          `json:"total"`
	Filter  Filter       `json:"filter"`
	Screens []screenJSON `json:"screens"`
}

// listScreens returns the filtered screens with their thumbnails.
func (g *Gallery) listScreens(ctx context.Context, f Filter) (screenList, error) {
	snap := g.Snapshot()
	if snap.State != StateReady {
		return screenList{LoadID: snap.LoadID, State: snap.State}, ErrNotReady
	}
	shown := f.Apply(snap.Screens)
	out := screenList{
		LoadID:  snap.LoadID,
		State:   snap.State,
		Total:   len(shown),
		Filter:  f,
		Screens: make([]screenJSON, len(shown)),
	}
	for i, s := range shown {
		out.Screens[i] = screenJSON{Screen: s, Thumbnail: g.Thumbnail(ctx, nil, s.ID)}
	}
	return out, nil
}

func (g *Gallery) handleListScreens(w http.ResponseWriter, r *http.Request) {
	list, err := g.listScreens(r.Context(), ParseFilter(r.URL.Query()))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "state": list.State})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (g *Gallery) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := g.Screen(id)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, screenJSON{Screen: s, Thumbnail: g.Thumbnail(r.Context(), nil, id)})
}

func (g *Gallery) handleTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.Snapshot().Tags)
}

func (g *Gallery) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.Stats(r.Context()))
}

type visibilityRequest struct {
	Entries []Entry `json:"entries"`
}

func (g *Gallery) handleVisibility(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "view")
	ctx := kit.WithViewID(r.Context(), viewID)

	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid body", http.StatusBadRequest)
		return
	}
	changed, requested, err := g.Observe(ctx, viewID, req.Entries)
	if errors.Is(err, ErrUnknownView) {
		jsonErr(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if requested > 0 {
		shield.GetLogger(ctx).Debug("gallery: thumbnails requested",
			"view", viewID, "requested", requested)
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "requested": requested})
}

func (g *Gallery) handleEvents(w http.ResponseWriter, r *http.Request) {
	v, ok := g.views.Get(chi.URLParam(r, "view"))
	if !ok {
		jsonErr(w, ErrUnknownView.Error(), http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonErr(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	v.streamOpened()
	defer v.streamClosed(time.Now())

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	send := func() error {
		for _, ev := range v.drain() {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: thumbnail\ndata: %s\n\n", data); err != nil {
				return err
			}
		}
		flusher.Flush()
		return nil
	}
	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-v.notify:
			if err := send(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (g *Gallery) handleClearThumbnails(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if err := g.ClearThumbnails(r.Context(), id); err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	shield.GetLogger(r.Context()).Info("gallery: thumbnails cleared", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	var se *figma.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("API 호출 실패: %d %s", se.StatusCode, se.Status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
