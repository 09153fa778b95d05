// Package schedule runs cancellable one-shot and periodic tasks against an
// injectable clock, so timing-dependent code can be driven by virtual time in
// tests.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler tracks every live task so Close can cancel them all.
type Scheduler struct {
	clock clockwork.Clock

	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

// Task is a handle to a scheduled function.
type Task struct {
	s    *Scheduler
	stop func() bool
	once sync.Once
	done chan struct{}

	cancelled bool // written before done is closed
}

func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock: clock,
		tasks: make(map[*Task]struct{}),
	}
}

func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// After runs fn once, d from now. It returns nil if the scheduler is closed.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{s: s, done: make(chan struct{})}
	timer := s.clock.AfterFunc(d, func() {
		if !t.finish(false) {
			return
		}
		fn()
	})
	t.stop = timer.Stop
	if !s.track(t) {
		timer.Stop()
		return nil
	}
	return t
}

// Every runs fn each period until the task is cancelled. Runs never overlap.
func (s *Scheduler) Every(period time.Duration, fn func()) *Task {
	t := &Task{s: s, done: make(chan struct{})}
	ticker := s.clock.NewTicker(period)
	t.stop = func() bool {
		ticker.Stop()
		return true
	}
	if !s.track(t) {
		ticker.Stop()
		return nil
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-ticker.Chan():
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

// Cancel stops the task. It reports whether this call prevented a pending
// run (for one-shot tasks) or stopped a live periodic task.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.finish(true) {
		return false
	}
	if t.stop != nil {
		t.stop()
	}
	return true
}

// Done is closed once the task has run (one-shot) or been cancelled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancelled reports whether the task ended by cancellation, including
// Scheduler.Close, rather than by running. It is only meaningful after Done
// is closed.
func (t *Task) Cancelled() bool {
	select {
	case <-t.done:
		return t.cancelled
	default:
		return false
	}
}

// finish marks the task as over exactly once.
func (t *Task) finish(cancelled bool) bool {
	first := false
	t.once.Do(func() {
		first = true
		t.cancelled = cancelled
		close(t.done)
		t.s.untrack(t)
	})
	return first
}

// Close cancels every outstanding task. Later After and Every calls return nil.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	pending := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}
}

// Pending returns how many tasks are still scheduled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) track(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-t.done:
		// Already fired.
		return true
	default:
	}
	s.tasks[t] = struct{}{}
	return true
}

func (s *Scheduler) untrack(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}
