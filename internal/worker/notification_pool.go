// Package worker runs escalation notifications off the sweep path so a slow
// channel never holds up state transitions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/notify"
	"github.com/helpline/escalation-service/internal/observability"
)

var (
	ErrQueueFull  = errors.New("notification queue is full")
	ErrPoolClosed = errors.New("notification pool is shut down")
)

// Job is one supervisor notification.
type Job struct {
	Request    domain.HelpRequest
	Supervisor domain.Supervisor
	Level      int
	EnqueuedAt time.Time
}

// PoolOptions sizes the pool. Zero values fall back to defaults.
type PoolOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// NotificationPool delivers jobs with a fixed set of workers over a bounded queue.
type NotificationPool struct {
	notifier notify.Notifier
	history  *notify.History
	metrics  *observability.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	workers  int

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewNotificationPool builds a pool; call Start before submitting.
func NewNotificationPool(notifier notify.Notifier, history *notify.History, metrics *observability.Metrics, logger *zap.Logger, opts PoolOptions) *NotificationPool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationPool{
		notifier: notifier,
		history:  history,
		metrics:  metrics,
		logger:   logger,
		timeout:  opts.Timeout,
		workers:  opts.Workers,
		queue:    make(chan Job, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *NotificationPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info("notification pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.queue)))
}

// Submit enqueues without blocking.
func (p *NotificationPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.RecordNotification("dropped")
		return ErrPoolClosed
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	select {
	case p.queue <- job:
		return nil
	default:
		p.metrics.RecordNotification("dropped")
		p.logger.Warn("notification queue full, dropping",
			zap.Int64("request_id", job.Request.ID),
			zap.String("supervisor_id", job.Supervisor.ID))
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight and queued jobs. When ctx
// expires first, outstanding deliveries are cancelled and ctx.Err is returned
// without waiting for them.
func (p *NotificationPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		// in-flight deliveries see a cancelled context and queued jobs are
		// recorded as abandoned; the workers finish that bookkeeping on their own
		p.cancel()
		return ctx.Err()
	}
}

func (p *NotificationPool) run(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.deliver(id, job)
	}
}

func (p *NotificationPool) deliver(workerID int, job Job) {
	record := domain.NotificationRecord{
		RequestID:    job.Request.ID,
		SupervisorID: job.Supervisor.ID,
		Channel:      p.notifier.Channel(),
		Level:        job.Level,
		SentAt:       time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in notification worker recovered",
				zap.Int("worker", workerID),
				zap.Any("panic", r))
			record.Delivered = false
			record.Error = "panic during delivery"
			p.history.Record(record)
			p.metrics.RecordNotification("failed")
		}
	}()

	if err := p.ctx.Err(); err != nil {
		record.Error = "abandoned at shutdown"
		p.history.Record(record)
		p.metrics.RecordNotification("dropped")
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	err := p.notify(ctx, job)
	if errors.Is(err, notify.ErrNotDeliverable) {
		record.Error = err.Error()
		p.history.Record(record)
		p.metrics.RecordNotification("skipped")
		p.logger.Info("notification skipped",
			zap.Int64("request_id", job.Request.ID),
			zap.String("supervisor_id", job.Supervisor.ID),
			zap.Error(err))
		return
	}
	if err != nil {
		record.Error = err.Error()
		p.history.Record(record)
		p.metrics.RecordNotification("failed")
		p.logger.Warn("notification failed",
			zap.Int64("request_id", job.Request.ID),
			zap.String("supervisor_id", job.Supervisor.ID),
			zap.Int("level", job.Level),
			zap.Error(err))
		return
	}
	record.Delivered = true
	p.history.Record(record)
	p.metrics.RecordNotification("delivered")
	p.logger.Debug("notification delivered",
		zap.Int64("request_id", job.Request.ID),
		zap.String("supervisor_id", job.Supervisor.ID),
		zap.Duration("queued_for", time.Since(job.EnqueuedAt)))
}

// notify bounds a delivery by ctx even when the notifier ignores it. A notifier
// that never returns leaks its goroutine, never the worker.
func (p *NotificationPool) notify(ctx context.Context, job Job) error {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("panic in notifier recovered", zap.Any("panic", r))
				result <- fmt.Errorf("panic during delivery: %v", r)
			}
		}()
		result <- p.notifier.Notify(ctx, job.Request, job.Supervisor)
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery abandoned: %w", ctx.Err())
	}
}
