// Package scheduler provides a priority-ordered executor with a fixed
// concurrency ceiling. Both the job queue and the proxy gateway use it.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
)

// Executor admits at most Limit functions at once. Waiters are released by
// scheduler priority (larger first) and then by submission order.
type Executor struct {
	mu      sync.Mutex
	limit   int
	active  int
	seq     uint64
	waiting waitQueue
}

type waiter struct {
	priority int
	seq      uint64
	ready    chan struct{}
	granted  bool
	index    int
}

// NewExecutor creates an executor. A limit below 1 is raised to 1.
func NewExecutor(limit int) *Executor {
	if limit < 1 {
		limit = 1
	}
	return &Executor{limit: limit}
}

// Acquire blocks until a slot is free for the given scheduler priority or
// ctx is done. Every successful Acquire must be paired with Release.
func (e *Executor) Acquire(ctx context.Context, priority int) error {
	e.mu.Lock()
	if e.active < e.limit && e.waiting.Len() == 0 {
		e.active++
		e.mu.Unlock()
		return nil
	}
	e.seq++
	w := &waiter{priority: priority, seq: e.seq, ready: make(chan struct{})}
	heap.Push(&e.waiting, w)
	e.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		if w.granted {
			// The slot was handed over while ctx was being cancelled.
			e.mu.Unlock()
			e.Release()
			return ctx.Err()
		}
		heap.Remove(&e.waiting, w.index)
		e.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot, handing it straight to the highest priority waiter.
func (e *Executor) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.waiting.Len() > 0 {
		w := heap.Pop(&e.waiting).(*waiter)
		w.granted = true
		close(w.ready)
		return
	}
	if e.active > 0 {
		e.active--
	}
}

// Do runs fn inside a slot. Panics in fn are returned as errors.
func (e *Executor) Do(ctx context.Context, priority int, fn func(ctx context.Context) error) (err error) {
	if err := e.Acquire(ctx, priority); err != nil {
		return err
	}
	defer e.Release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Go runs fn asynchronously once a slot is available. The returned channel
// receives fn's result and is then closed.
func (e *Executor) Go(ctx context.Context, priority int, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- e.Do(ctx, priority, fn)
	}()
	return done
}

// Active returns the number of occupied slots.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Pending returns the number of callers waiting for a slot.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiting.Len()
}

// Limit returns the concurrency ceiling.
func (e *Executor) Limit() int {
	return e.limit
}

type waitQueue []*waiter

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
