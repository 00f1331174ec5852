package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvocationRequest is the transport-agnostic invocation payload.
type InvocationRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// InvocationResult is the transport-agnostic invocation outcome.
type InvocationResult struct {
	Outputs    map[string]any `json:"outputs,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// Dispatcher routes invocation requests to registered tools. It owns no
// transport; stdio and SSE servers both feed it.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over a frozen registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch resolves the named tool and invokes it. A missing tool is its own
// failure, distinct from any adapter error.
func (d *Dispatcher) Dispatch(ctx context.Context, req InvocationRequest) (InvocationResult, error) {
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	t, ok := d.registry.Lookup(req.Tool)
	if !ok {
		d.logger.Warn("tool not found", "tool", req.Tool, "request_id", requestID)
		return InvocationResult{}, fmt.Errorf("%w: %s", ErrNotFound, req.Tool)
	}

	start := time.Now()
	outputs, err := t.Invoke(ctx, req.Arguments)
	if err != nil {
		failure := FailureFrom(err)
		d.logger.Error("tool invocation failed",
			"tool", req.Tool,
			"request_id", requestID,
			"kind", failure.Kind,
			"duration_ms", elapsedMS(start),
		)
		return InvocationResult{}, err
	}

	d.logger.Info("tool invocation succeeded",
		"tool", req.Tool,
		"request_id", requestID,
		"duration_ms", elapsedMS(start),
	)
	return InvocationResult{
		Outputs:    outputs,
		DurationMS: elapsedMS(start),
		RequestID:  requestID,
	}, nil
}
