package gallery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "gallery-test", Version: "0.1.0"}

// mcpSession registers the gallery tools and returns a connected client
// session that can call them end-to-end.
func mcpSession(t *testing.T, e *testEnv) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	e.g.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns the text of the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	e := newTestEnv(t)
	session := mcpSession(t, e)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"gallery_list_screens":      false,
		"gallery_get_screen":        false,
		"gallery_tags":              false,
		"gallery_stats":             false,
		"gallery_reload":            false,
		"gallery_clear_thumbnails":  false,
		"gallery_request_thumbnail": false,
	}
	for _, tool := range res.Tools {
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCP_ListScreens(t *testing.T) {
	e := newTestEnv(t)
	e.load(t)
	session := mcpSession(t, e)

	out := callTool(t, session, "gallery_list_screens", map[string]any{
		"screen_types": []string{"Main"},
	})
	var list screenList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}
}

func TestMCP_GetScreenMarkdown(t *testing.T) {
	// WHAT: The detail card comes back as Markdown, not HTML.
	e := newTestEnv(t)
	e.load(t)
	e.sched.Tiers().SetMemory("1:1", "https://img.example/home.png")
	session := mcpSession(t, e)

	out := callTool(t, session, "gallery_get_screen", map[string]any{"id": "1:1"})
	for _, want := range []string{"Home", "1.2.0", "Button, Card", "https://img.example/home.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<p>") || strings.Contains(out, "<strong>") {
		t.Errorf("markdown still contains HTML:\n%s", out)
	}
}

func TestMCP_GetScreenUnknown(t *testing.T) {
	e := newTestEnv(t)
	e.load(t)
	session := mcpSession(t, e)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "gallery_get_screen",
		Arguments: map[string]any{"id": "nope"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown screen")
	}
}

func TestMCP_ReloadAndTags(t *testing.T) {
	e := newTestEnv(t)
	session := mcpSession(t, e)

	out := callTool(t, session, "gallery_reload", map[string]any{"purge_cache": true})
	var r reloadResponse
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatal(err)
	}
	if r.State != StateReady || r.Screens != 3 {
		t.Errorf("reload = %+v", r)
	}
	if e.source.purged.Load() != 1 {
		t.Error("purge_cache not forwarded")
	}

	out = callTool(t, session, "gallery_tags", map[string]any{})
	if !strings.Contains(out, "Settings") || !strings.Contains(out, "Toggle") {
		t.Errorf("tags = %s", out)
	}
}

func TestMCP_ThumbnailTools(t *testing.T) {
	e := newTestEnv(t)
	e.load(t)
	session := mcpSession(t, e)

	out := callTool(t, session, "gallery_request_thumbnail", map[string]any{"id": "2:1", "timeout_seconds": 5})
	if !strings.Contains(out, thumbURL("2:1")) {
		t.Errorf("request_thumbnail = %s", out)
	}

	callTool(t, session, "gallery_clear_thumbnails", map[string]any{"id": "2:1"})
	if e.sched.Tiers().Resolved(context.Background(), "2:1") {
		t.Error("thumbnail still cached after clear")
	}

	out = callTool(t, session, "gallery_stats", map[string]any{})
	var st Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if st.Scheduler.Resolved != 1 {
		t.Errorf("scheduler resolved = %d, want 1", st.Scheduler.Resolved)
	}
}
