// Package tasks runs detached best-effort work: cleanup that must happen
// after a local transaction has committed but must never block or fail the
// committing caller.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/ids"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/obs"
)

// Task is one unit of detached work. Run errors are logged, never retried.
type Task struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
}

// Queue is a bounded fire-and-forget worker pool. Enqueue never blocks: when
// the queue is full the task is dropped with a logged warning, matching the
// best-effort contract of post-commit cleanup.
type Queue struct {
	ch      chan Task
	limiter *rate.Limiter
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts a queue with the given buffer size, worker count and per-second
// pacing against the external backend.
func New(size, workers int, perSecond float64, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 2
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ch:      make(chan Task, size),
		limiter: rate.NewLimiter(limit, workers),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue submits a task. Returns false when the queue is full or closed.
func (q *Queue) Enqueue(kind string, run func(ctx context.Context) error) bool {
	t := Task{ID: ids.New(), Kind: kind, Run: run}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		obs.CleanupTasks.WithLabelValues(kind, "dropped").Inc()
		return false
	}
	select {
	case q.ch <- t:
		return true
	default:
		obs.CleanupTasks.WithLabelValues(kind, "dropped").Inc()
		q.log.Warn("cleanup queue full, task dropped",
			zap.String("task_id", t.ID),
			zap.String("kind", kind),
		)
		return false
	}
}

// Close stops accepting tasks, drains the buffer and waits for workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.ch {
		if err := q.limiter.Wait(q.ctx); err != nil {
			obs.CleanupTasks.WithLabelValues(t.Kind, "dropped").Inc()
			continue
		}
		start := time.Now()
		err := t.Run(q.ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			q.log.Warn("cleanup task failed",
				zap.String("task_id", t.ID),
				zap.String("kind", t.Kind),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
		} else {
			q.log.Info("cleanup task done",
				zap.String("task_id", t.ID),
				zap.String("kind", t.Kind),
				zap.Duration("took", time.Since(start)),
			)
		}
		obs.CleanupTasks.WithLabelValues(t.Kind, outcome).Inc()
	}
}
