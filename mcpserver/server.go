// Package mcpserver exposes a tool registry over the Model Context Protocol.
// Tools are advertised from the registry's schemas and invocations are routed
// through the dispatcher, so transport concerns never touch tool logic. Both
// stdio and SSE transports are supported.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/petal-labs/pistil/tool"
)

const catalogURI = "pistil://catalog"

// Server wraps an MCP server around a frozen tool registry.
type Server struct {
	mcp        *server.MCPServer
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	monitor    *tool.Monitor
	logger     *slog.Logger
}

// Options tune the MCP handshake and optional endpoints.
type Options struct {
	Name    string
	Version string
	Monitor *tool.Monitor
	Logger  *slog.Logger
}

// New builds a Server advertising every tool in the registry. The registry is
// frozen, so the advertisement never changes over the server's lifetime.
func New(registry *tool.Registry, dispatcher *tool.Dispatcher, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "pistil"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:        server.NewMCPServer(opts.Name, opts.Version),
		registry:   registry,
		dispatcher: dispatcher,
		monitor:    opts.Monitor,
		logger:     logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves MCP on stdin/stdout until the stream closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio", "tools", s.registry.Len())
	return server.ServeStdio(s.mcp)
}

// ServeSSE serves MCP over SSE on the given port until ctx is cancelled, then
// shuts down gracefully. A /healthz endpoint reports tool health alongside
// the protocol endpoints.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcp, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	mux.HandleFunc("/healthz", s.handleHealth)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over SSE", "address", addr, "tools", s.registry.Len())
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("mcpserver: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcpserver: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	for _, tl := range s.registry.List() {
		spec := mcp.NewToolWithRawSchema(tl.Name(), tl.Description(), inputSchemaJSON(tl.Inputs()))
		s.mcp.AddTool(spec, s.handlerFor(tl.Name()))
	}
}

// handlerFor adapts one registered tool to the MCP call contract. Tool
// failures become structured error results, not protocol errors, so clients
// always receive the {kind, message} shape.
func (s *Server) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.dispatcher.Dispatch(ctx, tool.InvocationRequest{
			Tool:      name,
			Arguments: request.GetArguments(),
		})
		if err != nil {
			payload, _ := json.Marshal(tool.FailureFrom(err))
			return mcp.NewToolResultError(string(payload)), nil
		}
		payload, _ := json.Marshal(result.Outputs)
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(catalogURI, "Tool Catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload, err := json.Marshal(s.catalogDocument())
		if err != nil {
			return nil, fmt.Errorf("render catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      catalogURI,
				MIMEType: "application/json",
				Text:     string(payload),
			},
		}, nil
	})
}

type catalogEntry struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Inputs      map[string]tool.FieldSpec `json:"inputs"`
	Outputs     map[string]tool.FieldSpec `json:"outputs,omitempty"`
}

func (s *Server) catalogDocument() []catalogEntry {
	tools := s.registry.List()
	entries := make([]catalogEntry, 0, len(tools))
	for _, tl := range tools {
		entries = append(entries, catalogEntry{
			Name:        tl.Name(),
			Description: tl.Description(),
			Inputs:      tl.Inputs(),
			Outputs:     tl.Outputs(),
		})
	}
	return entries
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var reports []tool.HealthReport
	if s.monitor != nil {
		reports = s.monitor.Reports()
	}
	status := http.StatusOK
	overall := "ok"
	for _, report := range reports {
		if report.State == tool.HealthUnhealthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": overall,
		"tools":  reports,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
