package loop

import (
	"sort"
	"time"
)

// Manual is a Loop driven by virtual time. Posted functions and due timers
// run only inside Flush and Advance, on the caller's goroutine. It is meant
// for tests and is not safe for concurrent use.
type Manual struct {
	now    time.Time
	seq    int
	timers []*manualTimer
	queue  []func()
}

type manualTimer struct {
	m       *Manual
	when    time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewManual returns a Manual loop starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time { return m.now }

// Post queues f until the next Flush.
func (m *Manual) Post(f func()) { m.queue = append(m.queue, f) }

// AfterFunc registers f to run once virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Flush runs posted functions until none remain, including functions posted
// by the functions it runs.
func (m *Manual) Flush() {
	for len(m.queue) > 0 {
		f := m.queue[0]
		m.queue = m.queue[1:]
		f()
	}
}

// Pending reports the number of armed timers.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing due timers in order. Posted
// functions are flushed before and after every timer.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	m.Flush()
	for {
		t := m.nextDue(end)
		if t == nil {
			break
		}
		if t.when.After(m.now) {
			m.now = t.when
		}
		t.fired = true
		t.f()
		m.Flush()
	}
	m.now = end
	m.compact()
}

func (m *Manual) nextDue(end time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.when.After(end) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].when.Equal(due[j].when) {
			return due[i].seq < due[j].seq
		}
		return due[i].when.Before(due[j].when)
	})
	return due[0]
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
}
