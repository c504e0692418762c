// Package functions is the callable-function registry of the platform: the
// server-side endpoints the client reaches through Invoke.
package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"livelocal/internal/remote"
)

// Handler executes one named function against a raw JSON payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Registry maps function names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds name to handler, replacing any previous binding.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	r.handlers[name] = handler
	r.mu.Unlock()
}

// Invoke marshals the payload, runs the named handler and returns its
// result as raw JSON. Unknown names return remote.ErrUnknownFunction.
func (r *Registry) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, remote.ErrUnknownFunction)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("functions: encode %s payload: %w", name, err)
	}
	result, err := handler(ctx, raw)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("function failed", "name", name, "error", err)
		}
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("functions: encode %s result: %w", name, err)
	}
	return out, nil
}
