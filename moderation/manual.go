package moderation

import (
	"sync"
	"time"
)

// ManualScheduler only fires timers when Advance is called.
type ManualScheduler struct {
	mtx    sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	scheduler *ManualScheduler
	deadline  time.Time
	f         func()
	stopped   bool
	fired     bool
}

func (t *manualTimer) Stop() bool {
	t.scheduler.mtx.Lock()
	defer t.scheduler.mtx.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManualScheduler(now time.Time) *ManualScheduler {
	return &ManualScheduler{now: now}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t := &manualTimer{scheduler: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *ManualScheduler) Now() time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.now
}

// Pending returns the number of armed timers.
func (m *ManualScheduler) Pending() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	count := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

// Advance moves the clock forward and runs due timers, outside the scheduler
// lock.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mtx.Lock()
	m.now = m.now.Add(d)
	due := []*manualTimer{}
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.deadline.After(m.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mtx.Unlock()
	for _, t := range due {
		t.f()
	}
}

// FireAll runs every callback ever scheduled, stopped ones included, as
// timers racing their own cancellation would.
func (m *ManualScheduler) FireAll() {
	m.mtx.Lock()
	all := make([]*manualTimer, len(m.timers))
	copy(all, m.timers)
	for _, t := range all {
		t.fired = true
	}
	m.mtx.Unlock()
	for _, t := range all {
		t.f()
	}
}
