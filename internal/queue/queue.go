package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"spectral-distview/internal/logger"
	"spectral-distview/internal/metrics"
)

// Task is a unit of background work
type Task interface {
	Name() string
	Run(ctx context.Context) bool
}

// Handle resolves once with the result of a pushed task
type Handle struct {
	done chan struct{}
	ok   bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(ok bool) {
	h.ok = ok
	close(h.done)
}

// Wait blocks until the task has finished and reports whether it completed
func (h *Handle) Wait() bool {
	<-h.done
	return h.ok
}

// Done is closed when the task has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type job struct {
	task   Task
	handle *Handle
	then   func(ok bool)
}

// lane holds the FIFO backlog of one view
type lane struct {
	name    string
	pending []job
	running bool
}

// Queue runs tasks in submission order per lane. Lanes proceed
// concurrently, bounded by a shared pool of worker slots.
type Queue struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	workers chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	wg      sync.WaitGroup
	logger  logger.Logger
}

// New creates a stopped queue with the given number of worker slots
func New(workers int, log logger.Logger) *Queue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.NoOpLogger{}
	}

	pool := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		pool <- struct{}{}
	}

	return &Queue{
		lanes:   make(map[string]*lane),
		workers: pool,
		logger:  log,
	}
}

// Start begins draining every lane. Tasks pushed before Start wait for it.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	for _, l := range q.lanes {
		q.kick(l)
	}
}

// Push appends task to lane. A task pushed after Shutdown resolves as failed.
func (q *Queue) Push(laneName string, task Task) *Handle {
	return q.PushThen(laneName, task, nil)
}

// PushThen is Push with a continuation. then runs on the lane after the task
// and before its handle resolves, so continuations of one lane never overlap
// and follow submission order. It is not called for tasks that never ran.
func (q *Queue) PushThen(laneName string, task Task, then func(ok bool)) *Handle {
	h := newHandle()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		h.resolve(false)
		return h
	}

	l, ok := q.lanes[laneName]
	if !ok {
		l = &lane{name: laneName}
		q.lanes[laneName] = l
	}
	l.pending = append(l.pending, job{task: task, handle: h, then: then})
	metrics.QueueDepth.WithLabelValues(laneName).Set(float64(len(l.pending)))

	if q.started {
		q.kick(l)
	}
	return h
}

// Pending returns the number of tasks waiting in lane
func (q *Queue) Pending(laneName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok := q.lanes[laneName]; ok {
		return len(l.pending)
	}
	return 0
}

// Shutdown stops the queue, waits for running tasks and fails the backlog
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.lanes {
		for _, j := range l.pending {
			metrics.TasksTotal.WithLabelValues(j.task.Name(), metrics.OutcomeSkipped).Inc()
			j.handle.resolve(false)
		}
		l.pending = nil
		metrics.QueueDepth.WithLabelValues(l.name).Set(0)
	}
}

// kick starts a drain goroutine for l unless one is active. Caller holds mu.
func (q *Queue) kick(l *lane) {
	if l.running || len(l.pending) == 0 {
		return
	}
	l.running = true
	q.wg.Add(1)
	go q.drain(l)
}

func (q *Queue) drain(l *lane) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(l.pending) == 0 || q.closed {
			l.running = false
			q.mu.Unlock()
			return
		}
		j := l.pending[0]
		l.pending = l.pending[1:]
		metrics.QueueDepth.WithLabelValues(l.name).Set(float64(len(l.pending)))
		ctx := q.ctx
		q.mu.Unlock()

		ok := q.execute(ctx, l.name, j.task)
		if j.then != nil {
			j.then(ok)
		}
		j.handle.resolve(ok)
	}
}

// execute runs one task inside a worker slot
func (q *Queue) execute(ctx context.Context, laneName string, task Task) (ok bool) {
	select {
	case <-q.workers:
		defer func() { q.workers <- struct{}{} }()
	case <-ctx.Done():
		metrics.TasksTotal.WithLabelValues(task.Name(), metrics.OutcomeSkipped).Inc()
		return false
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("TaskQueue", fmt.Errorf("task panicked: %v", r), map[string]interface{}{
				"lane": laneName,
				"task": task.Name(),
			})
			ok = false
		}

		outcome := metrics.OutcomeCompleted
		if !ok {
			outcome = metrics.OutcomeCancelled
		}
		metrics.TasksTotal.WithLabelValues(task.Name(), outcome).Inc()
		metrics.TaskDuration.WithLabelValues(task.Name()).Observe(time.Since(start).Seconds())
	}()

	ok = task.Run(ctx)
	q.logger.Debug("TaskQueue", "task finished", map[string]interface{}{
		"lane":     laneName,
		"task":     task.Name(),
		"ok":       ok,
		"duration": time.Since(start).String(),
	})
	return ok
}
