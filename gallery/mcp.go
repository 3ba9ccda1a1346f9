package gallery

import (
	"context"
	"fmt"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/screengallery/kit"
)

const defaultThumbnailWait = 30 * time.Second

// RegisterMCP registers the gallery tools on an MCP server.
func (g *Gallery) RegisterMCP(srv *mcp.Server) {
	g.registerListScreensTool(srv)
	g.registerGetScreenTool(srv)
	g.registerTagsTool(srv)
	g.registerStatsTool(srv)
	g.registerReloadTool(srv)
	g.registerClearThumbnailsTool(srv)
	g.registerRequestThumbnailTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (g *Gallery) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.WithLogging(g.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- list_screens ---

type listScreensRequest struct {
	ScreenTypes  []string `json:"screen_types,omitempty"`
	UIComponents []string `json:"ui_components,omitempty"`
}

func (g *Gallery) registerListScreensTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_list_screens",
		Description: "List design screens, optionally filtered by screen type and UI component tags. A screen matches when it has any selected tag of each given dimension.",
		InputSchema: inputSchema(map[string]any{
			"screen_types":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Screen Type tags"},
			"ui_components": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "UI Components tags"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listScreensRequest)
		return g.listScreens(ctx, Filter{
			ScreenTypes:  cleanValues(r.ScreenTypes),
			UIComponents: cleanValues(r.UIComponents),
		})
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[listScreensRequest])
}

// --- get_screen ---

type screenIDRequest struct {
	ID string `json:"id"`
}

func (g *Gallery) registerGetScreenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_get_screen",
		Description: "Show the detail card of one screen as Markdown: title, thumbnail, app version, screen types and UI components.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Screen node id (e.g. 12:34)"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*screenIDRequest)
		return g.ScreenMarkdown(ctx, r.ID)
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[screenIDRequest])
}

// ScreenMarkdown renders the detail card of a screen as Markdown.
func (g *Gallery) ScreenMarkdown(ctx context.Context, id string) (string, error) {
	s, err := g.Screen(id)
	if err != nil {
		return "", err
	}
	html, err := g.renderModal(s, safeImageURL(g.Thumbnail(ctx, nil, id)))
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("gallery: markdown %s: %w", id, err)
	}
	return md, nil
}

// --- tags ---

func (g *Gallery) registerTagsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_tags",
		Description: "List the Screen Type and UI Components tag vocabularies in first-appearance order.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return g.Snapshot().Tags, nil
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[struct{}])
}

// --- stats ---

func (g *Gallery) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_stats",
		Description: "Show load state, view count, thumbnail cache sizes and scheduler counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return g.Stats(ctx), nil
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[struct{}])
}

// --- reload ---

type reloadRequest struct {
	PurgeCache bool `json:"purge_cache,omitempty"`
}

type reloadResponse struct {
	LoadID  string `json:"load_id"`
	State   State  `json:"state"`
	Screens int    `json:"screens"`
}

func (g *Gallery) registerReloadTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_reload",
		Description: "Re-run the metadata load. purge_cache drops cached upstream responses first.",
		InputSchema: inputSchema(map[string]any{
			"purge_cache": map[string]any{"type": "boolean", "description": "Bypass the upstream response cache"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*reloadRequest)
		if r.PurgeCache {
			if p, ok := g.source.(interface{ PurgeCache() }); ok {
				p.PurgeCache()
			}
		}
		if err := g.Load(ctx); err != nil {
			return nil, err
		}
		snap := g.Snapshot()
		return reloadResponse{LoadID: snap.LoadID, State: snap.State, Screens: len(snap.Screens)}, nil
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[reloadRequest])
}

// --- clear_thumbnails ---

func (g *Gallery) registerClearThumbnailsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_clear_thumbnails",
		Description: "Forget cached thumbnail URLs, for one screen or (without id) all of them.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Screen node id; omit to clear everything"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*screenIDRequest)
		if err := g.ClearThumbnails(ctx, r.ID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "cleared", "id": r.ID}, nil
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[screenIDRequest])
}

// --- request_thumbnail ---

type requestThumbnailRequest struct {
	ID             string `json:"id"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (g *Gallery) registerRequestThumbnailTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gallery_request_thumbnail",
		Description: "Fetch the thumbnail URL of one screen with priority and wait for it.",
		InputSchema: inputSchema(map[string]any{
			"id":              map[string]any{"type": "string", "description": "Screen node id"},
			"timeout_seconds": map[string]any{"type": "integer", "description": "Max wait (default 30)"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*requestThumbnailRequest)
		wait := defaultThumbnailWait
		if r.TimeoutSeconds > 0 {
			wait = time.Duration(r.TimeoutSeconds) * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		url, err := g.RequestThumbnail(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": r.ID, "url": url}, nil
	}
	g.tool(srv, tool, endpoint, kit.DecodeArgs[requestThumbnailRequest])
}
