// Package job runs pipeline tasks one at a time on a background goroutine and
// reports a completion for each of them.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunFunc func(ctx context.Context, input string) (string, error)

type Task struct {
	ID    string
	Input string
}

type Completion struct {
	TaskID  string
	Input   string
	Output  string
	Err     error
	Elapsed time.Duration
}

type Worker struct {
	run RunFunc

	ctx    context.Context
	cancel context.CancelFunc

	mut     sync.Mutex
	started bool
	closed  bool

	queue         chan Task
	completionsCh chan Completion
	doneCh        chan struct{}
	doneOnce      sync.Once
}

// NewWorker returns a worker accepting up to queueSize pending tasks.
// Completions are buffered to the same size and should be consumed.
func NewWorker(run RunFunc, queueSize int) (*Worker, error) {
	if run == nil {
		return nil, fmt.Errorf("invalid run func: should not be nil")
	}
	if queueSize < 1 {
		return nil, fmt.Errorf("invalid queue size: should be a positive number")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		run:           run,
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan Task, queueSize),
		completionsCh: make(chan Completion, queueSize),
		doneCh:        make(chan struct{}),
	}, nil
}

func (w *Worker) Start() error {
	w.mut.Lock()
	defer w.mut.Unlock()

	if w.started {
		return fmt.Errorf("worker has already started")
	}
	w.started = true

	go w.loop()

	return nil
}

// Submit queues input and returns the ID its completion will carry.
func (w *Worker) Submit(input string) (string, error) {
	w.mut.Lock()
	defer w.mut.Unlock()

	if w.closed {
		return "", fmt.Errorf("worker is closed")
	}

	task := Task{
		ID:    uuid.NewString(),
		Input: input,
	}

	select {
	case w.queue <- task:
	default:
		return "", fmt.Errorf("queue is full")
	}

	return task.ID, nil
}

// Close stops accepting tasks. Queued tasks still run, after which the
// completions channel is closed and Done fires.
func (w *Worker) Close() {
	w.mut.Lock()
	defer w.mut.Unlock()

	if !w.closed {
		w.closed = true
		close(w.queue)
	}
}

// Stop cancels the running task and waits for the worker to exit. Tasks still
// queued complete with the cancellation error without running.
func (w *Worker) Stop(ctx context.Context) error {
	w.mut.Lock()
	started := w.started
	w.mut.Unlock()
	if !started {
		return fmt.Errorf("worker has not started")
	}

	w.Close()
	w.cancel()

	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Worker) Completions() <-chan Completion {
	return w.completionsCh
}

func (w *Worker) loop() {
	defer w.done()

	for task := range w.queue {
		w.completionsCh <- w.process(task)
	}
}

func (w *Worker) process(task Task) Completion {
	c := Completion{
		TaskID: task.ID,
		Input:  task.Input,
	}

	if err := w.ctx.Err(); err != nil {
		slog.Debug("skipping task", slog.String("taskID", task.ID), slog.String("input", task.Input))
		c.Err = err
		return c
	}

	slog.Debug("running task", slog.String("taskID", task.ID), slog.String("input", task.Input))

	start := time.Now()
	c.Output, c.Err = w.run(w.ctx, task.Input)
	c.Elapsed = time.Since(start)

	return c
}

func (w *Worker) done() {
	w.doneOnce.Do(func() {
		w.cancel()
		close(w.completionsCh)
		close(w.doneCh)
	})
}
