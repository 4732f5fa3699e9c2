package events

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Second

// TaskTracker records every asynchronous unit of work spawned to react to an
// event or a manual command so callers can wait for quiescence. A unit that
// registers further units before finishing keeps the tracker busy, which is
// what makes Wait observe transitively spawned work.
type TaskTracker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  map[uint64]bool // id -> finished
	nextID uint64
}

// NewTaskTracker returns an empty tracker.
func NewTaskTracker() *TaskTracker {
	t := &TaskTracker{tasks: map[uint64]bool{}}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Begin registers one unit of work and returns the function that marks it
// finished. The returned function is safe to call once from any goroutine.
func (t *TaskTracker) Begin() func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.tasks[id] = false
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.tasks[id] = true
			t.cond.Broadcast()
			t.mu.Unlock()
		})
	}
}

// Go runs fn on a tracked goroutine.
func (t *TaskTracker) Go(fn func()) {
	done := t.Begin()
	go func() {
		defer done()
		fn()
	}()
}

// Pending returns the number of unfinished units.
func (t *TaskTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

func (t *TaskTracker) pendingLocked() int {
	n := 0
	for _, finished := range t.tasks {
		if !finished {
			n++
		}
	}
	return n
}

// Wait blocks until every tracked unit has finished, including units
// registered while waiting. It re-derives the live set at each wakeup, so
// the advisory sweep is irrelevant for correctness.
func (t *TaskTracker) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.pendingLocked() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

// Sweep drops entries for finished units. Housekeeping only.
func (t *TaskTracker) Sweep() {
	t.mu.Lock()
	for id, finished := range t.tasks {
		if finished {
			delete(t.tasks, id)
		}
	}
	t.mu.Unlock()
}

// RunSweeper prunes finished entries every second until ctx is cancelled.
func (t *TaskTracker) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
