package adapter

import (
	"context"
	"log/slog"
	"sync"
)

// SchemaTask is one unit of background physical-schema work.
type SchemaTask struct {
	Model string
	Desc  string
	Run   func(ctx context.Context) error
}

// SchemaQueue runs schema tasks in order on a background goroutine so that
// Define and DefineProperty never block. Failures are logged, not returned.
// Data operations call Wait to observe every task enqueued before them.
//
// The queue is unbounded; a worker goroutine exists only while tasks are
// pending.
type SchemaQueue struct {
	log *slog.Logger

	mu      sync.Mutex
	tasks   []SchemaTask
	running bool
	idle    chan struct{} // closed when the worker drains the queue
}

// NewSchemaQueue creates an idle queue logging to log.
func NewSchemaQueue(log *slog.Logger) *SchemaQueue {
	return &SchemaQueue{log: log}
}

// Enqueue schedules t.
func (q *SchemaQueue) Enqueue(t SchemaTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, t)
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.drain()
	}
}

func (q *SchemaQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = SchemaTask{}
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		if err := t.Run(context.Background()); err != nil {
			q.log.Error("schema task failed", "model", t.Model, "task", t.Desc, "error", err)
			continue
		}
		q.log.Debug("schema task done", "model", t.Model, "task", t.Desc)
	}
}

// Wait blocks until every task enqueued so far has run.
func (q *SchemaQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}
