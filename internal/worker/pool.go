// Package worker runs CPU-heavy prediction work off the request path.
// The pool bounds concurrency, times out jobs that wait or run too long and
// drains outstanding jobs on shutdown.

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrTimeout means the job did not finish within the job timeout. It is
	// safe to retry.
	ErrTimeout = errors.New("worker pool: job timed out")
	// ErrPoolStopped means the pool no longer accepts jobs.
	ErrPoolStopped = errors.New("worker pool: stopped")
)

// Prometheus metrics
var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_jobs_submitted_total",
		Help: "Total number of jobs submitted to the worker pool",
	})

	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_jobs_processed_total",
		Help: "Total number of jobs completed by workers",
	})

	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_jobs_failed_total",
		Help: "Total number of jobs that returned an error or timed out",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forecast_worker_queue_depth",
		Help: "Current depth of the worker queue",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_job_duration_seconds",
		Help:    "Duration of worker pool jobs",
		Buckets: prometheus.DefBuckets,
	})
)

// Job is a unit of work for the worker pool
type Job struct {
	ctx      context.Context
	fn       func(ctx context.Context) error
	done     chan error
	enqueued time.Time
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount int
	QueueSize   int
	JobTimeout  time.Duration
	Logger      *zap.Logger
}

// Pool manages a fixed set of workers
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"jobTimeout", p.config.JobTimeout,
	)
}

// Stop stops accepting jobs and waits for queued jobs to finish
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	p.cancel()
	close(p.jobQueue)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Do runs fn on a worker and waits for its result. The job's context is
// canceled when the caller's context ends or the job timeout elapses;
// either way Do returns ErrTimeout if fn has not finished.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	job := Job{
		ctx:      jobCtx,
		fn:       fn,
		done:     make(chan error, 1),
		enqueued: time.Now(),
	}

	if err := p.enqueue(jobCtx, job); err != nil {
		jobsFailed.Inc()
		return err
	}

	select {
	case err := <-job.done:
		if err != nil && jobCtx.Err() != nil {
			return ErrTimeout
		}
		return err
	case <-jobCtx.Done():
		jobsFailed.Inc()
		return ErrTimeout
	}
}

func (p *Pool) enqueue(ctx context.Context, job Job) (err error) {
	// Protect against sending on closed channel
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnw("Failed to enqueue job (pool stopped)", "error", r)
			err = ErrPoolStopped
		}
	}()

	if p.ctx == nil || p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case p.jobQueue <- job:
		jobsSubmitted.Inc()
		return nil
	case <-ctx.Done():
		p.logger.Warnw("Worker queue full until job deadline", "queueDepth", len(p.jobQueue))
		return ErrTimeout
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// worker runs jobs until the queue is closed
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		if job.ctx.Err() != nil {
			// Caller already gave up; skip the work.
			job.done <- ErrTimeout
			continue
		}

		start := time.Now()
		err := p.run(job)
		jobDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			jobsFailed.Inc()
		} else {
			jobsProcessed.Inc()
		}
		job.done <- err
	}

	p.logger.Infow("Worker exited", "worker", id)
}

func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Job panic", "error", r, "queuedFor", time.Since(job.enqueued))
			err = fmt.Errorf("worker pool: job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
