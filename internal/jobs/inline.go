package jobs

import (
	"context"
	"log/slog"
)

// Inline runs jobs synchronously inside Enqueue. Handler errors are logged,
// never returned, so callers see the same contract as the worker pool.
type Inline struct {
	registry
	logger *slog.Logger
}

func NewInline(logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{logger: logger}
}

func (q *Inline) Enqueue(ctx context.Context, name string, payload any) error {
	handler, err := q.lookup(name)
	if err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := handler(context.WithoutCancel(ctx), data); err != nil {
		q.logger.Warn("job failed", "job", name, "error", err)
	}
	return nil
}
