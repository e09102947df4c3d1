// Package schedule runs deferred one-shot tasks: per-message blob
// deletions and burn-after-reading expiry notices. Tasks live in a
// fire-time min-heap so pending work is cancellable, unlike raw
// time.AfterFunc timers.
package schedule

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskID identifies a scheduled task for cancellation.
type TaskID uint64

type task struct {
	id     TaskID
	fireAt time.Time
	fn     func()
	index  int
}

type taskHeap []*task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].fireAt.Before(h[j].fireAt) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)        { t := x.(*task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler owns the heap and a single run loop. Callbacks run in their
// own goroutines; a slow deletion never delays other timers.
type Scheduler struct {
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	heap   taskHeap
	byID   map[TaskID]*task
	nextID TaskID

	wake chan struct{}
}

// New creates a scheduler. Run must be started for tasks to fire.
func New(clock Clock, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger.With().Str("component", "scheduler").Logger(),
		byID:   make(map[TaskID]*task),
		wake:   make(chan struct{}, 1),
	}
}

// Schedule arms fn to run after d. It returns an id usable with Cancel.
func (s *Scheduler) Schedule(d time.Duration, fn func()) TaskID {
	s.mu.Lock()
	s.nextID++
	t := &task{id: s.nextID, fireAt: s.clock.Now().Add(d), fn: fn}
	heap.Push(&s.heap, t)
	s.byID[t.id] = t
	s.mu.Unlock()

	s.kick()
	return t.id
}

// Cancel removes a pending task. It reports whether the task was still
// pending; a task that already fired returns false.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.index < 0 {
		return false
	}
	heap.Remove(&s.heap, t.index)
	delete(s.byID, id)
	return true
}

// Pending returns the number of armed tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes the timer loop until ctx is cancelled. Pending tasks are
// dropped on shutdown; the janitor's retention ceiling covers anything a
// process restart loses.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		var timerCh <-chan time.Time

		s.mu.Lock()
		if len(s.heap) > 0 {
			d := s.heap[0].fireAt.Sub(s.clock.Now())
			if d <= 0 {
				due := s.popDue()
				s.mu.Unlock()
				for _, t := range due {
					go t.fn()
				}
				continue
			}
			timerCh = s.clock.After(d)
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timerCh:
		}
	}
}

// popDue removes every task whose fire time has arrived. Caller holds mu.
func (s *Scheduler) popDue() []*task {
	now := s.clock.Now()
	var due []*task
	for len(s.heap) > 0 && !s.heap[0].fireAt.After(now) {
		t := heap.Pop(&s.heap).(*task)
		delete(s.byID, t.id)
		due = append(due, t)
	}
	return due
}
