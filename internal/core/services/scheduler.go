package services

import (
	"sync"
	"time"
)

// Scheduler runs one-shot deferred tasks. Relay timing (roster after
// confirmation, repeated PTT release, audio after release) goes through it
// instead of sleeping in handlers.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler schedules with time.AfterFunc. A zero or negative delay
// runs fn on the caller's goroutine.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer
	next   uint64
	closed bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[uint64]*time.Timer),
	}
}

func (s *TimerScheduler) After(d time.Duration, fn func()) {
	if d <= 0 {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			fn()
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	id := s.next
	s.next++
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, pending := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()

		if pending {
			fn()
		}
	})
}

// Pending returns the number of scheduled tasks that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending tasks and rejects new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
