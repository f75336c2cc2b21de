package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/roundness/internal/adapters/mq/queue"
	"github.com/okian/roundness/pkg/logger"
	"github.com/okian/roundness/pkg/metrics"
)

// Task processes the file at index. Tasks of one stage run concurrently and
// must only write state owned by their index.
type Task func(ctx context.Context, index int) error

// Pool runs stage tasks over a fixed number of workers. Each Run is a
// barrier: it returns only once every index of the stage has been handled.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a pool of size workers. A size below one uses the number
// of CPUs.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{size: size, name: "worker"}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named(p.name)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Run executes task for every index in [0, n) and returns the error of each
// index. Indices not reached because ctx was cancelled carry ctx.Err().
func (p *Pool) Run(ctx context.Context, stage string, n int, task Task) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}
	done := make([]bool, n)

	q := queue.NewInMemoryQueue(queue.WithCapacity(n))
	for i := range n {
		if !q.Enqueue(ctx, queue.Job{Stage: stage, Index: i}) {
			break
		}
	}
	if err := q.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	workers := min(p.size, n)
	var wg sync.WaitGroup
	for id := range workers {
		w := &InMemoryWorker{
			name:   p.name + "-" + strconv.Itoa(id),
			queue:  q,
			task:   task,
			errs:   errs,
			done:   done,
			logger: p.logger,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()

	for i := range errs {
		if !done[i] {
			errs[i] = ctx.Err()
			if errs[i] == nil {
				errs[i] = fmt.Errorf("%s: file %d was not processed", stage, i)
			}
		}
	}
	return errs
}

// InMemoryWorker consumes jobs of one stage until the queue is drained or
// ctx is done.
type InMemoryWorker struct {
	name   string
	queue  queue.Queue
	task   Task
	errs   []error
	done   []bool
	logger logger.Logger
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			w.errs[j.Index] = w.process(ctx, j)
			w.done[j.Index] = true
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: file %d: panic: %v", j.Stage, j.Index, r)
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "task panicked",
				logger.String("worker", w.name),
				logger.String("stage", j.Stage),
				logger.Int("file", j.Index),
				logger.Any("panic", r),
			)
		}
		metrics.RecordWorkerTaskDuration(j.Stage, time.Since(start).Seconds())
	}()

	err = w.task(ctx, j.Index)
	if err != nil {
		w.logger.Debug(ctx, "task failed",
			logger.String("worker", w.name),
			logger.String("stage", j.Stage),
			logger.Int("file", j.Index),
			logger.Error(err),
		)
	}
	return err
}
