package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

func echoDefinition() tool.Definition {
	return tool.Definition{
		Name:        "echo",
		Description: "Echo the text back.",
		Inputs: map[string]tool.FieldSpec{
			"text": {Type: tool.TypeString, Required: true},
		},
		Outputs: map[string]tool.FieldSpec{
			"text": {Type: tool.TypeString},
		},
		Build: func(config.ToolConfig) (tool.Runtime, error) {
			return tool.Runtime{
				Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return map[string]any{"text": args["text"]}, nil
				},
			}, nil
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	resolver := config.NewResolver(config.NewSnapshot(nil, []string{"TOOL_ECHO_ENABLED=true"}, nil), nil)
	registry, err := tool.BuildRegistry([]tool.Definition{echoDefinition()}, resolver, tool.BuildOptions{})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	return New(registry, tool.NewDispatcher(registry, nil), Options{Version: "test"})
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := s.handlerFor(name)(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestHandlerReturnsToolOutputs(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "echo", map[string]any{"text": "hello"})
	if result.IsError {
		t.Fatalf("IsError = true, content %v", result.Content)
	}
	var outputs map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &outputs); err != nil {
		t.Fatalf("outputs are not JSON: %v", err)
	}
	if outputs["text"] != "hello" {
		t.Errorf("text = %v, want hello", outputs["text"])
	}
}

func TestHandlerReturnsStructuredFailures(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "echo", map[string]any{"text": "hi", "bogus": 1})
	if !result.IsError {
		t.Fatal("IsError = false for invalid arguments")
	}
	var failure tool.Failure
	if err := json.Unmarshal([]byte(resultText(t, result)), &failure); err != nil {
		t.Fatalf("failure payload is not structured JSON: %v", err)
	}
	if failure.Kind != tool.KindInvalidArguments {
		t.Errorf("Kind = %q, want %q", failure.Kind, tool.KindInvalidArguments)
	}
	if failure.Message == "" {
		t.Error("failure has no message")
	}
}

func TestCatalogDocumentListsTools(t *testing.T) {
	s := newTestServer(t)
	entries := s.catalogDocument()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Name != "echo" || entries[0].Description == "" {
		t.Errorf("entry = %+v", entries[0])
	}
	if _, ok := entries[0].Inputs["text"]; !ok {
		t.Errorf("inputs = %v, want text field", entries[0].Inputs)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200 without a monitor", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	resolver := config.NewResolver(config.NewSnapshot(nil, []string{"TOOL_DOWN_ENABLED=true"}, nil), nil)
	def := tool.Definition{
		Name:   "down",
		Inputs: map[string]tool.FieldSpec{},
		Build: func(config.ToolConfig) (tool.Runtime, error) {
			return tool.Runtime{
				Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return nil, nil
				},
				Probe: func(ctx context.Context) error {
					return tool.RejectedError("token revoked", 401)
				},
			}, nil
		},
	}
	registry, err := tool.BuildRegistry([]tool.Definition{def}, resolver, tool.BuildOptions{})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	monitor, err := tool.NewMonitor(tool.MonitorConfig{Registry: registry})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	_ = monitor.RunOnce(context.Background())

	s := New(registry, tool.NewDispatcher(registry, nil), Options{Monitor: monitor})
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503 with an unhealthy tool", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCORSMiddleware(t *testing.T) {
	reachedNext := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachedNext = true
	})

	rec := httptest.NewRecorder()
	corsMiddleware(next).ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/sse", nil))
	if rec.Code != 200 {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if reachedNext {
		t.Error("preflight reached the wrapped handler")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}

	rec = httptest.NewRecorder()
	corsMiddleware(next).ServeHTTP(rec, httptest.NewRequest("GET", "/sse", nil))
	if !reachedNext {
		t.Error("GET did not reach the wrapped handler")
	}
}
