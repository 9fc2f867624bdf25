package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrencyLimit bounds parallel room creations per batch
const DefaultConcurrencyLimit = 2

// Executor runs one admitted creation request. It owns releasing the
// admission lock for the request.
type Executor interface {
	Execute(ctx context.Context, req *model.CreateRequest) error
}

// queuedRequest carries the request with a context detached from the
// caller's cancellation
type queuedRequest struct {
	ctx context.Context
	req *model.CreateRequest
}

// CreationQueue is the admission gate plus the ordered creation buffer.
// A single drain loop takes batches of up to limit requests, runs each
// batch in parallel and waits for it before taking the next.
type CreationQueue struct {
	locks    coordinator.LockTable
	executor Executor
	limit    int
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu       sync.Mutex
	pending  []queuedRequest
	draining bool
	stopped  bool
	idle     chan struct{}

	admitted  uint64
	rejected  uint64
	completed uint64
	failed    uint64
}

// NewCreationQueue creates an idle queue
func NewCreationQueue(
	locks coordinator.LockTable,
	executor Executor,
	limit int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CreationQueue {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	idle := make(chan struct{})
	close(idle)

	return &CreationQueue{
		locks:    locks,
		executor: executor,
		limit:    limit,
		metrics:  m,
		logger:   logger,
		idle:     idle,
	}
}

// RequestCreate admits req unless a request for the same (tenant, owner)
// is already queued or running. The admission lock is taken before the
// request is enqueued and is released only by the executor. It returns
// false without error for a duplicate.
func (q *CreationQueue) RequestCreate(ctx context.Context, req *model.CreateRequest) (bool, error) {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return false, fmt.Errorf("creation queue is stopped")
	}

	key := req.LockKey()
	acquired, err := q.locks.TryAcquire(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to acquire admission lock: %w", err)
	}
	if !acquired {
		atomic.AddUint64(&q.rejected, 1)
		q.metrics.RecordAdmissionRejected(string(req.Source))
		q.logger.Debug("Creation already in flight, dropping request",
			zap.String("tenant_id", req.TenantID),
			zap.String("owner_id", req.Owner.ID),
			zap.String("source", string(req.Source)))
		return false, nil
	}

	q.mu.Lock()
	if q.stopped {
		// Stop ran while the lock was being taken
		q.mu.Unlock()
		if err := q.locks.Release(context.WithoutCancel(ctx), key); err != nil {
			q.logger.Warn("Failed to release admission lock of rejected request",
				zap.String("lock_key", key),
				zap.Error(err))
		}
		return false, fmt.Errorf("creation queue is stopped")
	}
	atomic.AddUint64(&q.admitted, 1)
	q.pending = append(q.pending, queuedRequest{ctx: context.WithoutCancel(ctx), req: req})
	depth := len(q.pending)
	start := !q.draining
	if start {
		q.draining = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	q.metrics.UpdateQueueDepth(depth)
	q.logger.Info("Queued room creation",
		zap.String("tenant_id", req.TenantID),
		zap.String("owner_id", req.Owner.ID),
		zap.String("source", string(req.Source)),
		zap.Int("queue_size", depth))

	if start {
		go q.drain()
	}
	return true, nil
}

// drain is the single active processing loop
func (q *CreationQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			close(q.idle)
			q.mu.Unlock()
			q.metrics.UpdateQueueDepth(0)
			q.logger.Debug("Creation queue drained")
			return
		}

		n := q.limit
		if n > len(q.pending) {
			n = len(q.pending)
		}
		batch := make([]queuedRequest, n)
		copy(batch, q.pending[:n])
		q.pending = q.pending[n:]
		depth := len(q.pending)
		q.mu.Unlock()

		q.metrics.UpdateQueueDepth(depth)

		var g errgroup.Group
		for _, item := range batch {
			item := item
			g.Go(func() error {
				q.execute(item)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// execute runs one request, recovering panics so the loop keeps draining
func (q *CreationQueue) execute(item queuedRequest) {
	start := time.Now()
	err := q.safeExecute(item)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&q.failed, 1)
		q.logger.Debug("Room creation finished with error",
			zap.String("request_id", item.req.RequestID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&q.completed, 1)
}

func (q *CreationQueue) safeExecute(item queuedRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("room creation panicked: %v", r)
			q.logger.Error("Room creation panic recovered",
				zap.String("request_id", item.req.RequestID),
				zap.String("tenant_id", item.req.TenantID),
				zap.String("owner_id", item.req.Owner.ID),
				zap.Any("panic", r))
		}
	}()
	return q.executor.Execute(item.ctx, item.req)
}

// Wait blocks until the queue is empty and no batch is running
func (q *CreationQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.draining {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects new requests and waits for queued ones to finish
func (q *CreationQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		return fmt.Errorf("creation queue stop timeout after %v", timeout)
	}
	q.logger.Info("Creation queue stopped")
	return nil
}

// QueueStats is a snapshot of the queue counters
type QueueStats struct {
	Pending   int
	Draining  bool
	Admitted  uint64
	Rejected  uint64
	Completed uint64
	Failed    uint64
}

// Stats returns current queue statistics
func (q *CreationQueue) Stats() QueueStats {
	q.mu.Lock()
	pending, draining := len(q.pending), q.draining
	q.mu.Unlock()

	return QueueStats{
		Pending:   pending,
		Draining:  draining,
		Admitted:  atomic.LoadUint64(&q.admitted),
		Rejected:  atomic.LoadUint64(&q.rejected),
		Completed: atomic.LoadUint64(&q.completed),
		Failed:    atomic.LoadUint64(&q.failed),
	}
}
