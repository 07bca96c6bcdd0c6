// SPDX-License-Identifier: MIT
package sonar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSchedulerRunning is returned when a running Scheduler is started again.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Task is one unit of periodic work. Tick reports whether it produced a
// result.
type Task interface {
	Tick() bool
}

// TaskFunc adapts a function to a Task.
type TaskFunc func() bool

func (f TaskFunc) Tick() bool { return f() }

// overrunRecorder is implemented by tasks that want to count dropped ticks.
type overrunRecorder interface {
	NoteOverrun(missed uint64)
}

// Scheduler runs a Task at a fixed interval on its own goroutine. A tick
// that is still running when the next is due causes that next tick to be
// dropped, never queued.
type Scheduler struct {
	interval time.Duration
	task     Task

	mu     sync.Mutex // Protects cancel and done during Start/Stop.
	cancel context.CancelFunc
	done   chan struct{}

	runs     atomic.Uint64
	overruns atomic.Uint64
}

// NewScheduler creates a Scheduler. The interval must be positive.
func NewScheduler(interval time.Duration, task Task) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	if task == nil {
		return nil, errors.New("scheduler task cannot be nil")
	}
	return &Scheduler{interval: interval, task: task}, nil
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Runs returns the number of ticks executed.
func (s *Scheduler) Runs() uint64 { return s.runs.Load() }

// Overruns returns the number of ticks dropped.
func (s *Scheduler) Overruns() uint64 { return s.overruns.Load() }

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Scheduler) begin(ctx context.Context) (context.Context, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil, nil, ErrSchedulerRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	return ctx, s.done, nil
}

// Start launches the loop in a new goroutine. It runs until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	go s.loop(ctx, done)
	return nil
}

// Run executes the loop on the calling goroutine until ctx is cancelled or
// Stop is called. It always returns nil once stopped, which makes it a fit
// for an errgroup.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	s.loop(ctx, done)
	return nil
}

// Stop cancels the loop and waits for it to exit. It is safe to call Stop
// multiple times; calls on a stopped scheduler are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.cancel()
		s.cancel, s.done = nil, nil
		s.mu.Unlock()
		close(done)
	}()

	logger.Debugf("scheduler started (interval %s)", s.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("scheduler stopped after %d ticks, %d overruns", s.runs.Load(), s.overruns.Load())
			return
		case <-ticker.C:
			s.runOnce(ticker)
		}
	}
}

func (s *Scheduler) runOnce(ticker *time.Ticker) {
	start := time.Now()
	s.task.Tick()
	s.runs.Add(1)

	elapsed := time.Since(start)
	if elapsed <= s.interval {
		return
	}

	// Discard the tick the ticker buffered while the task ran.
	select {
	case <-ticker.C:
	default:
	}
	missed := uint64(elapsed / s.interval)
	s.overruns.Add(missed)
	if r, ok := s.task.(overrunRecorder); ok {
		r.NoteOverrun(missed)
	}
	logger.Debugf("tick overran by %s, dropped %d tick(s)", elapsed-s.interval, missed)
}
