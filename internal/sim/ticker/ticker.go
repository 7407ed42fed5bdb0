package ticker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a periodic callback owned by a Scheduler.
type Task struct {
	period uint64
	next   uint64
	fn     func()

	cancelled atomic.Bool
}

// Cancel stops the task. It is safe to call more than once and from inside the task itself.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
}

func (t *Task) Cancelled() bool {
	return t == nil || t.cancelled.Load()
}

// Scheduler is the single cooperative tick loop of a host process. Callbacks run on the
// goroutine that calls Step (normally Run) and run to completion before the next one starts.
type Scheduler struct {
	rate int

	mu    sync.Mutex
	tick  uint64
	tasks []*Task
}

func New(tickRateHz int) *Scheduler {
	if tickRateHz <= 0 {
		tickRateHz = 20
	}
	return &Scheduler{rate: tickRateHz}
}

// TickRate is the number of ticks per second-equivalent.
func (s *Scheduler) TickRate() int { return s.rate }

func (s *Scheduler) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Every registers fn to fire every period ticks, first firing period ticks from now.
func (s *Scheduler) Every(period int, fn func()) *Task {
	if period < 1 {
		period = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Task{period: uint64(period), next: s.tick + uint64(period), fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Pending reports the number of live (not cancelled) tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.Cancelled() {
			n++
		}
	}
	return n
}

// Step advances one tick and fires every due task.
func (s *Scheduler) Step() uint64 {
	s.mu.Lock()
	s.tick++
	now := s.tick
	kept := s.tasks[:0]
	var due []*Task
	for _, t := range s.tasks {
		if t.Cancelled() {
			continue
		}
		kept = append(kept, t)
		if t.next <= now {
			due = append(due, t)
			t.next = now + t.period
		}
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept
	s.mu.Unlock()

	for _, t := range due {
		// A task cancelled by an earlier callback in this tick must not fire.
		if t.Cancelled() {
			continue
		}
		t.fn()
	}
	return now
}

func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.rate)
	tk := time.NewTicker(interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			s.Step()
		}
	}
}
