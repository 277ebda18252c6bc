// Package dispatch runs admitted download jobs on a fixed-size worker
// pool, keeping the intake path non-blocking. Jobs queue in arrival order
// when every worker is busy; the queue itself has no depth cap.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"mediarelay/internal/metrics"
	"mediarelay/internal/models"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("dispatcher stopped")

// RunFunc executes one job to a terminal outcome. The context is the
// dispatcher's job context, cancelled only when a shutdown deadline runs
// out.
type RunFunc func(ctx context.Context, job models.DownloadJob)

// Dispatcher owns the queue and the workers.
type Dispatcher struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	run     RunFunc
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.DownloadJob
	closed bool

	wg     sync.WaitGroup
	jobCtx context.Context
	cancel context.CancelFunc
}

// New creates a dispatcher with the given pool size. Start must be called
// before Submit.
func New(logger *zap.Logger, m *metrics.Metrics, workers int, run RunFunc) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:  logger,
		metrics: m,
		run:     run,
		workers: workers,
		jobCtx:  ctx,
		cancel:  cancel,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.workers))
}

// Submit enqueues a job and returns immediately. It never blocks on busy
// workers; it only fails once the dispatcher is stopping.
func (d *Dispatcher) Submit(job models.DownloadJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStopped
	}
	d.queue = append(d.queue, job)
	d.metrics.QueueDepth.Set(float64(len(d.queue)))
	d.cond.Signal()
	return nil
}

// QueueDepth reports the number of jobs waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stop closes the queue and waits for the workers to drain it. If ctx
// expires first, in-flight jobs are cancelled through the job context and
// Stop returns the context error.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown deadline hit, cancelling jobs")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.logger.With(zap.Int("worker", id))

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			// closed and drained
			d.mu.Unlock()
			return
		}
		job := d.queue[0]
		d.queue = d.queue[1:]
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		d.mu.Unlock()

		d.metrics.ActiveWorkers.Inc()
		log.Info("job started",
			zap.String("job_id", job.ID),
			zap.String("platform", string(job.Platform)),
			zap.Int64("user_id", job.UserID))
		d.run(d.jobCtx, job)
		log.Info("job finished", zap.String("job_id", job.ID))
		d.metrics.ActiveWorkers.Dec()
	}
}
