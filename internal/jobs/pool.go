package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// PoolOptions configures a worker pool.
type PoolOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
	Registerer  prometheus.Registerer
}

type envelope struct {
	name     string
	payload  json.RawMessage
	attempts int
}

// Pool runs jobs on a fixed set of worker goroutines fed by a bounded channel.
type Pool struct {
	registry
	opts      PoolOptions
	queue     chan envelope
	logger    *slog.Logger
	processed *prometheus.CounterVec

	mu      sync.RWMutex
	closed  bool
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
}

func NewPool(opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetd",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Jobs processed by name and outcome.",
	}, []string{"job", "outcome"})
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(processed); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				processed = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				logger.Warn("register job metrics", "error", err)
			}
		}
	}

	return &Pool{
		opts:      opts,
		queue:     make(chan envelope, opts.QueueSize),
		logger:    logger,
		processed: processed,
	}
}

// Start launches the workers. They run until Shutdown or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	for i := 0; i < p.opts.Workers; i++ {
		worker := i
		group.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	p.logger.Info("job workers started", "workers", p.opts.Workers, "queue_size", p.opts.QueueSize)
}

// Enqueue hands a job to the workers without blocking.
func (p *Pool) Enqueue(ctx context.Context, name string, payload any) error {
	if _, err := p.lookup(name); err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return p.push(ctx, envelope{name: name, payload: data})
}

func (p *Pool) push(ctx context.Context, job envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.processed.WithLabelValues(job.name, "dropped").Inc()
		return ErrQueueFull
	}
}

// Shutdown stops intake, lets workers drain queued jobs, and waits for them
// until ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(ctx, worker, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, job envelope) {
	handler, err := p.lookup(job.name)
	if err != nil {
		p.logger.Error("job dropped", "job", job.name, "error", err)
		return
	}
	for {
		job.attempts++
		err := handler(ctx, job.payload)
		if err == nil {
			p.processed.WithLabelValues(job.name, "ok").Inc()
			return
		}
		if job.attempts >= p.opts.MaxAttempts || ctx.Err() != nil {
			p.processed.WithLabelValues(job.name, "failed").Inc()
			p.logger.Error("job failed", "job", job.name, "worker", worker, "attempts", job.attempts, "error", err)
			return
		}
		p.processed.WithLabelValues(job.name, "retried").Inc()
		p.logger.Warn("job attempt failed", "job", job.name, "worker", worker, "attempt", job.attempts, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.RetryDelay * time.Duration(job.attempts)):
		}
	}
}
