package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestWithLogging_PassesThroughError(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) { return nil, errFail }

	_, err := WithLogging(nil, "x")(base)(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport(t *testing.T) {
	if v := GetTransport(context.Background()); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if v := GetTransport(WithTransport(context.Background(), "mcp")); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_TraceAndView(t *testing.T) {
	ctx := WithViewID(WithTraceID(context.Background(), "abc"), "v_1")
	if v := GetTraceID(ctx); v != "abc" {
		t.Fatalf("trace_id: got %q", v)
	}
	if v := GetViewID(ctx); v != "v_1" {
		t.Fatalf("view_id: got %q", v)
	}
	if v := GetViewID(context.Background()); v != "" {
		t.Fatalf("view_id default: got %q", v)
	}
}

func TestDecodeArgs(t *testing.T) {
	type args struct {
		ID string `json:"id"`
	}
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"object", `{"id":"1:2"}`, "1:2"},
		{"absent", ``, ""},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(tt.raw)}}
			res, err := DecodeArgs[args](req)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Request.(*args).ID; got != tt.want {
				t.Errorf("id = %q, want %q", got, tt.want)
			}
		})
	}

	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`[1]`)}}
	if _, err := DecodeArgs[args](req); err == nil {
		t.Error("expected error for non-object arguments")
	}
}

func TestToolResult(t *testing.T) {
	res, _ := toolResult("plain")
	if tc := res.Content[0].(*mcp.TextContent); tc.Text != "plain" {
		t.Errorf("text = %q", tc.Text)
	}
	res, _ = toolResult(map[string]int{"n": 1})
	if tc := res.Content[0].(*mcp.TextContent); tc.Text != `{"n":1}` {
		t.Errorf("json = %q", tc.Text)
	}
	if res := toolError(errors.New("boom")); !res.IsError {
		t.Error("toolError not flagged")
	}
}
