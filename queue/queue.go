// Package queue runs asynchronous work with a fixed concurrency limit and
// admits waiting work in submission order.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-slack/core"
)

// Work is one unit submitted to the queue. The context passed in is the
// context given to Submit.
type Work func(ctx context.Context) error

type task struct {
	ctx        context.Context
	work       Work
	handle     *Handle
	enqueuedAt time.Time
	element    *list.Element
}

// Handle resolves once its work completes, fails, or is abandoned while
// waiting for a slot.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error

	EnqueuedAt time.Time
}

func newHandle(enqueuedAt time.Time) *Handle {
	return &Handle{done: make(chan struct{}), EnqueuedAt: enqueuedAt}
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the work completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Queue admits at most Concurrency units of work at a time. Slots are handed
// from a finishing task to the next waiting task under one lock, so the
// running count never exceeds the limit.
type Queue struct {
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	running int
	pending *list.List
	closed  bool
	idle    []chan struct{}
}

func New(concurrency int) *Queue {
	if concurrency < 1 {
		concurrency = core.DefaultMaxConcurrency
	}
	return &Queue{
		concurrency: concurrency,
		now:         time.Now,
		pending:     list.New(),
	}
}

func (q *Queue) Concurrency() int {
	return q.concurrency
}

// Submit enqueues work and returns immediately. It fails with
// core.ErrQueueClosed once Close has been called.
func (q *Queue) Submit(ctx context.Context, work Work) (*Handle, error) {
	if work == nil {
		return nil, core.NewBadInputError("queue: work is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t := &task{ctx: ctx, work: work, enqueuedAt: q.now()}
	t.handle = newHandle(t.enqueuedAt)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, core.ErrQueueClosed
	}
	if q.running < q.concurrency && q.pending.Len() == 0 {
		q.running++
		q.mu.Unlock()
		go q.run(t)
		return t.handle, nil
	}
	t.element = q.pending.PushBack(t)
	q.mu.Unlock()

	if ctx.Done() != nil {
		go q.watch(t)
	}
	return t.handle, nil
}

// watch abandons a waiting task whose context ends before it is admitted.
func (q *Queue) watch(t *task) {
	select {
	case <-t.ctx.Done():
	case <-t.handle.done:
		return
	}
	q.mu.Lock()
	if t.element == nil {
		q.mu.Unlock()
		return
	}
	q.pending.Remove(t.element)
	t.element = nil
	q.notifyIdleLocked()
	q.mu.Unlock()
	t.handle.resolve(t.ctx.Err())
}

func (q *Queue) run(t *task) {
	for t != nil {
		t.handle.resolve(q.execute(t))
		t = q.handoff()
	}
}

func (q *Queue) execute(t *task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewInternalError(fmt.Sprintf("queue: work panicked: %v", recovered), nil)
		}
	}()
	return t.work(t.ctx)
}

// handoff releases the caller's slot or passes it to the oldest waiting task.
func (q *Queue) handoff() *task {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.pending.Front()
	if front == nil {
		q.running--
		q.notifyIdleLocked()
		return nil
	}
	next := q.pending.Remove(front).(*task)
	next.element = nil
	return next
}

func (q *Queue) notifyIdleLocked() {
	if q.running != 0 || q.pending.Len() != 0 {
		return
	}
	for _, ch := range q.idle {
		close(ch)
	}
	q.idle = nil
}

// Close stops admitting new submissions. Work already queued still runs.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain waits until nothing is running or waiting.
func (q *Queue) Drain(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	if q.running == 0 && q.pending.Len() == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the queue and drains it.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Close()
	return q.Drain(ctx)
}

func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}
