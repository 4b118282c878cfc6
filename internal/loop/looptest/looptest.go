// Package looptest provides a deterministic in-memory event loop driven by
// a virtual clock.
package looptest

import (
	"fmt"
	"sort"
	"time"

	"github.com/omochice/messi/internal/loop"
)

// Loop is a fake loop.Loop. Nothing happens until the test calls Ready,
// Advance or RunPosted.
type Loop struct {
	// RegisterErr, if set, is returned by the next Register call.
	RegisterErr error
	// TimerErr, if set, is returned by the next NewTimer call.
	TimerErr error

	now    time.Duration
	fds    map[int]loop.Handler
	timers []*Timer
	posted []func()
}

// New returns an empty loop with the clock at zero.
func New() *Loop {
	return &Loop{fds: make(map[int]loop.Handler)}
}

// Register implements loop.Loop.
func (l *Loop) Register(fd int, h loop.Handler) error {
	if err := l.RegisterErr; err != nil {
		l.RegisterErr = nil
		return err
	}
	if _, ok := l.fds[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	l.fds[fd] = h
	return nil
}

// Deregister implements loop.Loop.
func (l *Loop) Deregister(fd int) error {
	delete(l.fds, fd)
	return nil
}

// NewTimer implements loop.Loop.
func (l *Loop) NewTimer(fn func()) (loop.Timer, error) {
	if err := l.TimerErr; err != nil {
		l.TimerErr = nil
		return nil, err
	}
	t := &Timer{l: l, fn: fn, seq: len(l.timers)}
	l.timers = append(l.timers, t)
	return t, nil
}

// Post implements loop.Loop. Posted callbacks run on RunPosted or Advance.
func (l *Loop) Post(fn func()) { l.posted = append(l.posted, fn) }

// RunPosted runs every posted callback, including ones posted meanwhile.
func (l *Loop) RunPosted() {
	for len(l.posted) > 0 {
		fn := l.posted[0]
		l.posted = l.posted[1:]
		fn()
	}
}

// Registered reports whether fd is registered.
func (l *Loop) Registered(fd int) bool {
	_, ok := l.fds[fd]
	return ok
}

// NumRegistered reports the number of registered descriptors.
func (l *Loop) NumRegistered() int { return len(l.fds) }

// Ready delivers a readable event for fd. It reports false if fd is not
// registered.
func (l *Loop) Ready(fd int) bool {
	h, ok := l.fds[fd]
	if !ok {
		return false
	}
	h(loop.Readable)
	return true
}

// Now returns the virtual time elapsed since New.
func (l *Loop) Now() time.Duration { return l.now }

// Advance moves the clock forward by d, firing due timers in deadline order.
// Ties fire in timer creation order.
func (l *Loop) Advance(d time.Duration) {
	target := l.now + d
	for {
		l.RunPosted()
		t := l.nextDue(target)
		if t == nil {
			break
		}
		l.now = t.deadline
		if t.periodic {
			t.deadline += t.interval
		} else {
			t.armed = false
		}
		t.fires++
		t.fn()
	}
	l.now = target
}

func (l *Loop) nextDue(target time.Duration) *Timer {
	var due *Timer
	for _, t := range l.timers {
		if !t.armed || t.deadline > target {
			continue
		}
		if due == nil || t.deadline < due.deadline {
			due = t
		}
	}
	return due
}

// Timers returns all timers in creation order.
func (l *Loop) Timers() []*Timer { return l.timers }

// Armed returns the armed timers ordered by deadline.
func (l *Loop) Armed() []*Timer {
	var out []*Timer
	for _, t := range l.timers {
		if t.armed {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].deadline < out[j].deadline })
	return out
}

// Timer is a fake loop.Timer.
type Timer struct {
	l        *Loop
	fn       func()
	seq      int
	armed    bool
	periodic bool
	closed   bool
	interval time.Duration
	deadline time.Duration
	fires    int
}

// Start implements loop.Timer.
func (t *Timer) Start(d time.Duration, periodic bool) error {
	if t.closed {
		return fmt.Errorf("timer %d closed", t.seq)
	}
	t.armed, t.periodic = true, periodic
	t.interval = d
	t.deadline = t.l.now + d
	return nil
}

// Stop implements loop.Timer.
func (t *Timer) Stop() { t.armed = false }

// Close implements loop.Timer.
func (t *Timer) Close() error {
	t.armed = false
	t.closed = true
	return nil
}

// Armed reports whether the timer is armed.
func (t *Timer) Armed() bool { return t.armed }

// Closed reports whether the timer was closed.
func (t *Timer) Closed() bool { return t.closed }

// Interval returns the duration of the last Start.
func (t *Timer) Interval() time.Duration { return t.interval }

// Remaining returns the time until the timer fires.
func (t *Timer) Remaining() time.Duration { return t.deadline - t.l.now }

// Fires reports how many times the timer has fired.
func (t *Timer) Fires() int { return t.fires }
