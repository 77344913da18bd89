package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"curbside_relay/platform/logger"
)

const defaultRunTimeout = 30 * time.Second

var errNoRunner = errors.New("followup: runner not set")

// TimerScheduler fires jobs in-process with time.AfterFunc. Pending jobs are
// lost on restart.
type TimerScheduler struct {
	mu      sync.Mutex
	runner  Runner
	pending map[string]map[*time.Timer]struct{}
	log     *logger.Logger
	timeout time.Duration
}

func NewTimerScheduler(log *logger.Logger) *TimerScheduler {
	return &TimerScheduler{
		pending: make(map[string]map[*time.Timer]struct{}),
		log:     log,
		timeout: defaultRunTimeout,
	}
}

// SetRunner sets the job runner after initialization.
// This is needed to break the cycle between scheduler and voice bridge.
func (s *TimerScheduler) SetRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

func (s *TimerScheduler) Schedule(_ context.Context, job Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return errNoRunner
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		if !s.release(job.OrderID, &timer) {
			return
		}
		s.fire(job)
	})

	timers, ok := s.pending[job.OrderID]
	if !ok {
		timers = make(map[*time.Timer]struct{})
		s.pending[job.OrderID] = timers
	}
	timers[timer] = struct{}{}
	return nil
}

// Cancel stops every pending job for orderKey.
func (s *TimerScheduler) Cancel(_ context.Context, orderKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for timer := range s.pending[orderKey] {
		timer.Stop()
	}
	delete(s.pending, orderKey)
	return nil
}

// Pending returns the number of jobs waiting to fire for orderKey.
func (s *TimerScheduler) Pending(orderKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[orderKey])
}

// Stop cancels every pending job.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timers := range s.pending {
		for timer := range timers {
			timer.Stop()
		}
		delete(s.pending, key)
	}
}

// release removes timer from the pending set. It reports false when the job
// was cancelled in the meantime.
// The timer is read under the lock because the callback may start before
// Schedule has stored it.
func (s *TimerScheduler) release(orderKey string, timer **time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, ok := s.pending[orderKey]
	if !ok {
		return false
	}
	if _, ok := timers[*timer]; !ok {
		return false
	}
	delete(timers, *timer)
	if len(timers) == 0 {
		delete(s.pending, orderKey)
	}
	return true
}

func (s *TimerScheduler) fire(job Job) {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("followup panicked", "kind", job.Kind, "order_id", job.OrderID, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := runner.RunFollowup(ctx, job); err != nil {
		s.log.Error("followup failed", "kind", job.Kind, "order_id", job.OrderID, "error", err)
	}
}
