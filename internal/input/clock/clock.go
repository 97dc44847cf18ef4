// internal/input/clock/clock.go
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Clock abstracts time for the input pipeline. Callbacks scheduled through
// AfterFunc must run on the goroutine that owns the pipeline state; the
// event loop's implementation guarantees that by posting onto itself.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// OneShot is a restartable single-fire timer. A callback that was already
// scheduled when the timer was stopped or restarted is discarded.
type OneShot struct {
	clock   Clock
	delay   time.Duration
	fn      func()
	timer   Timer
	gen     uint64
	running bool
}

// NewOneShot creates a stopped timer that calls fn after delay once started.
func NewOneShot(c Clock, delay time.Duration, fn func()) *OneShot {
	return &OneShot{clock: c, delay: delay, fn: fn}
}

// Start arms the timer, restarting it if it is already running.
func (o *OneShot) Start() {
	o.Stop()
	o.gen++
	gen := o.gen
	o.running = true
	o.timer = o.clock.AfterFunc(o.delay, func() { o.fire(gen) })
}

// Stop disarms the timer.
func (o *OneShot) Stop() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.running = false
}

// IsRunning reports whether the timer is armed.
func (o *OneShot) IsRunning() bool { return o.running }

// Delay returns the configured delay.
func (o *OneShot) Delay() time.Duration { return o.delay }

func (o *OneShot) fire(gen uint64) {
	if gen != o.gen || !o.running {
		return
	}
	o.running = false
	o.timer = nil
	o.fn()
}

// Manual is a Clock driven explicitly by Advance. Callbacks run synchronously
// on the goroutine calling Advance, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m        *Manual
	deadline time.Time
	seq      uint64
	fn       func()
	stopped  bool
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f at Now()+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, deadline: m.now.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves time forward by d, firing every timer that becomes due,
// including timers scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		next.stopped = true
		m.mu.Unlock()
		next.fn()
	}
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})
	if len(m.timers) == 0 || m.timers[0].deadline.After(target) {
		return nil
	}
	return m.timers[0]
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	wasLive := !t.stopped
	t.stopped = true
	return wasLive
}
