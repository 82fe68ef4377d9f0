// Package worker runs the lap loader pool that serves queued lap load jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/laptrace/internal/adapters/mq/queue"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker loads laps for jobs read off the queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker on top of a session provider.
type InMemoryWorker struct {
	queue    Queue
	provider telemetry.SessionProvider
	name     string
	active   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, provider telemetry.SessionProvider, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		provider: provider,
		name:     "worker",
		active:   &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. On shutdown or cancellation every job already
// handed to the worker is rejected with queue.ErrClosed, so no requester waits
// on a reply that never comes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := w.queue.Dequeue(runCtx)
	for {
		select {
		case <-ctx.Done():
			w.drain(cancel, jobs)
			return
		case <-w.shutdown:
			w.drain(cancel, jobs)
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(runCtx, j)
		}
	}
}

// drain stops the dequeue loop and rejects any job already waiting on it. A
// job the queue is still holding is rejected by the queue once stop lands.
func (w *InMemoryWorker) drain(stop context.CancelFunc, jobs <-chan queue.Job) {
	stop()
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.logger.Debug(context.Background(), "job rejected on shutdown", logger.String("job_id", j.ID))
			j.Reject(queue.ErrClosed)
		default:
			return
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process answers one job. The job's own context wins over the worker's so a
// cancelled request stops its outstanding loads.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if j.Ctx != nil {
		ctx = j.Ctx
	}
	res := queue.Result{JobID: j.ID, Session: j.Session, Driver: j.Driver}
	res.Lap, res.Corners, res.Err = w.load(ctx, j)
	if res.Err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", reason(res.Err))
		w.logger.Debug(ctx, "lap load failed",
			logger.String("job_id", j.ID),
			logger.String("session", j.Session.String()),
			logger.String("driver", j.Driver),
			logger.Error(res.Err),
		)
	}

	if j.Reply == nil {
		return
	}
	select {
	case j.Reply <- res:
	default:
		w.logger.Warn(ctx, "reply dropped", logger.String("job_id", j.ID))
	}
}

func (w *InMemoryWorker) load(ctx context.Context, j queue.Job) (*telemetry.Lap, []telemetry.Corner, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s, err := w.provider.Fetch(ctx, j.Session)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", j.Session, err)
	}
	lap, err := s.FastestLap(j.Driver)
	if err != nil {
		return nil, s.Corners, err
	}
	return lap, s.Corners, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrLapNotFound):
		return "lap_not_found"
	case errors.Is(err, telemetry.ErrSessionUnavailable):
		return "session_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, provider telemetry.SessionProvider, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	active := &atomic.Int64{}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, provider,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
		p.workers[i].active = active
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, then waits for every worker to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	closed := false
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		} else {
			closed = true
		}
	}
	for _, w := range p.workers {
		close(w.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if closed {
		// Jobs still queued after every worker stopped would otherwise never
		// be answered.
		for j := range p.queue.Dequeue(shutdownCtx) {
			j.Reject(queue.ErrClosed)
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
