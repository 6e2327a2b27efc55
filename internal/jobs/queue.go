// Package jobs dispatches fire-and-forget background work.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrQueueFull     = errors.New("job queue is full")
	ErrQueueClosed   = errors.New("job queue is closed")
	ErrUnknownJob    = errors.New("unknown job")
	ErrMissingJobArg = errors.New("job name is required")
)

// Handler runs one job. Handlers must be idempotent: delivery is at least once.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Queue accepts jobs by name. Enqueue never reports the job's own outcome.
type Queue interface {
	Register(name string, handler Handler)
	Enqueue(ctx context.Context, name string, payload any) error
}

type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func (r *registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[name] = handler
}

func (r *registry) lookup(name string) (Handler, error) {
	if name == "" {
		return nil, ErrMissingJobArg
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	if !ok || handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return handler, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return data, nil
}
