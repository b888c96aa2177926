// Package schedule runs cancelable delayed tasks grouped by owner.
package schedule

import (
	"sync"
	"time"
)

// Scheduler runs fn after d. Tasks are grouped so that all pending work for
// one owner can be cancelled together; key distinguishes tasks within a group.
type Scheduler interface {
	Schedule(group, key string, d time.Duration, fn func())
	// Cancel stops every pending task in group and returns how many it stopped.
	Cancel(group string) int
	// Pending returns the number of tasks waiting in group.
	Pending(group string) int
	// Close cancels everything. Later Schedule calls are dropped.
	Close()
}

// Immediate runs every task synchronously, ignoring the delay.
type Immediate struct{}

func (Immediate) Schedule(_, _ string, _ time.Duration, fn func()) { fn() }
func (Immediate) Cancel(string) int                                { return 0 }
func (Immediate) Pending(string) int                               { return 0 }
func (Immediate) Close()                                           {}

// TimerScheduler runs tasks on time.AfterFunc goroutines.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]map[string]*time.Timer
	closed bool
}

// NewTimerScheduler returns an empty TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(group, key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	g := s.timers[group]
	if g == nil {
		g = make(map[string]*time.Timer)
		s.timers[group] = g
	}
	if old, ok := g[key]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		if !s.take(group, key, &t) {
			return
		}
		fn()
	})
	g[key] = t
}

// take removes a fired timer from the table. It returns false when the task
// was cancelled or replaced after the timer fired but before it got here.
// tp is dereferenced under the lock, after Schedule has stored the timer.
func (s *TimerScheduler) take(group, key string, tp **time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.timers[group]
	if g == nil || g[key] != *tp {
		return false
	}
	delete(g, key)
	if len(g) == 0 {
		delete(s.timers, group)
	}
	return true
}

func (s *TimerScheduler) Cancel(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers[group] {
		t.Stop()
		n++
	}
	delete(s.timers, group)
	return n
}

func (s *TimerScheduler) Pending(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers[group])
}

func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.timers {
		for _, t := range g {
			t.Stop()
		}
	}
	s.timers = make(map[string]map[string]*time.Timer)
	s.closed = true
}
