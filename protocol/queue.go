package protocol

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Queue is a FIFO serial executor: tasks run one at a time in arrival order
// on a single consumer goroutine. A failing task returns its error to the
// caller that enqueued it and never stalls the tasks behind it.
type Queue struct {
	name  string
	tasks chan queuedTask
	log   *slog.Logger

	mu      sync.Mutex
	closed  bool
	drained chan struct{}
}

type queuedTask struct {
	id  uuid.UUID
	ctx context.Context
	fn  func(context.Context) error
	res chan error
}

// NewQueue starts the queue's consumer. name tags its log lines.
func NewQueue(name string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		name:    name,
		tasks:   make(chan queuedTask, 64),
		log:     logger,
		drained: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.drained)
	for task := range q.tasks {
		if err := task.ctx.Err(); err != nil {
			task.res <- err
			continue
		}
		err := task.fn(task.ctx)
		if err != nil {
			q.log.Debug("queued operation failed", "queue", q.name, "op", task.id, "error", err)
		}
		task.res <- err
	}
}

// Do enqueues fn and blocks until it has run. The context gates both the
// wait for a queue slot and fn itself.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	task := queuedTask{id: uuid.New(), ctx: ctx, fn: fn, res: make(chan error, 1)}

	// The enqueue happens under the mutex so Close cannot shut the channel
	// while a send is in flight. Only the consumer receives, so holding the
	// mutex across a blocking send cannot deadlock.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return context.Canceled
	}
	select {
	case q.tasks <- task:
		q.mu.Unlock()
	case <-ctx.Done():
		q.mu.Unlock()
		return ctx.Err()
	}
	return <-task.res
}

// Close stops accepting tasks and waits for already-queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.drained
}
