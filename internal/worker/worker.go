package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/queue"
)

// Starter executes one run to completion.
type Starter interface {
	Start(ctx context.Context, params models.RunParams) (models.RunStatus, error)
}

// Dispatcher hands a submitted run to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, params models.RunParams) error
}

// LocalDispatcher runs each dispatched run on its own goroutine, at most
// maxConcurrent at a time.
type LocalDispatcher struct {
	ctx     context.Context
	starter Starter
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewLocalDispatcher binds runs to ctx rather than to the dispatching
// request, so a run outlives the HTTP call that started it.
func NewLocalDispatcher(ctx context.Context, starter Starter, maxConcurrent int) *LocalDispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &LocalDispatcher{
		ctx:     ctx,
		starter: starter,
		sem:     make(chan struct{}, maxConcurrent),
		logger:  slog.Default().With("component", "dispatcher"),
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, params models.RunParams) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			d.logger.Warn("run dropped during shutdown", "run_id", params.RunID)
			return
		}
		defer func() { <-d.sem }()
		if d.ctx.Err() != nil {
			d.logger.Warn("run dropped during shutdown", "run_id", params.RunID)
			return
		}

		run(d.ctx, d.starter, params, d.logger)
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// QueueDispatcher pushes runs onto the Redis queue for a Worker to consume.
type QueueDispatcher struct {
	queue *queue.Queue
}

func NewQueueDispatcher(q *queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, params models.RunParams) error {
	return d.queue.EnqueueRun(ctx, params)
}

type Worker struct {
	queue   *queue.Queue
	starter Starter
	logger  *slog.Logger
}

func New(q *queue.Queue, starter Starter) *Worker {
	return &Worker{
		queue:   q,
		starter: starter,
		logger:  slog.Default().With("component", "worker"),
	}
}

// Start consumes render jobs with concurrency consumers until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.logger.Info("worker started", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRenderAd)
	}

	<-ctx.Done()
	w.logger.Info("worker shutting down")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("dequeue failed", "queue", queueName, "error", err)
				time.Sleep(time.Second)
				continue
			}

			if job == nil {
				continue
			}

			w.logger.Info("processing job", "job_id", job.ID, "type", job.Type, "run_id", job.Params.RunID)
			run(ctx, w.starter, job.Params, w.logger)
		}
	}
}

func run(ctx context.Context, starter Starter, params models.RunParams, logger *slog.Logger) {
	status, err := starter.Start(ctx, params)
	if err != nil {
		logger.Error("run rejected", "run_id", params.RunID, "error", err)
		return
	}
	logger.Info("run finished", "run_id", params.RunID, "status", status.OverallStatus)
}
