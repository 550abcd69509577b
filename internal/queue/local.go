package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/fdsender/internal/models"
)

// maxDeliver bounds how often one task is handed to a handler.
const maxDeliver = 3

// LocalQueue is an in-process stand-in for the INGEST stream, used when the
// backend runs without NATS.
type LocalQueue struct {
	tasks chan models.IngestTask
	wg    sync.WaitGroup
}

func NewLocalQueue(size int) *LocalQueue {
	if size < 1 {
		size = 1024
	}
	return &LocalQueue{tasks: make(chan models.IngestTask, size)}
}

func (q *LocalQueue) PublishIngest(ctx context.Context, task models.IngestTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish ingest task: %w", ctx.Err())
	}
}

// Start runs workerCount handlers until ctx is done. A failing task is
// retried in place up to maxDeliver times, then dropped.
func (q *LocalQueue) Start(ctx context.Context, handler TaskHandler, workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	for i := range workerCount {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-q.tasks:
					q.deliver(ctx, handler, task, workerID)
				}
			}
		}(i)
	}
	slog.Info("local ingest queue started", "workers", workerCount)
}

func (q *LocalQueue) deliver(ctx context.Context, handler TaskHandler, task models.IngestTask, workerID int) {
	var err error
	for attempt := 1; attempt <= maxDeliver; attempt++ {
		if err = handler(ctx, task); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	slog.Error("drop ingest task", "worker", workerID, "task_id", task.TaskID, "error", err)
}

// Wait blocks until every worker has exited.
func (q *LocalQueue) Wait() {
	q.wg.Wait()
}

func (q *LocalQueue) QueueDepth(context.Context) (uint64, error) {
	return uint64(len(q.tasks)), nil
}

func (q *LocalQueue) Ping(context.Context) error { return nil }
