// Package loop defines the event loop binding consumed by the client and
// server runtimes.
//
// A Loop delivers level-triggered readiness notifications for registered
// descriptors and expiry callbacks for timers. All callbacks run on the
// goroutine driving the loop; the runtimes rely on this and use no locks.
package loop

import (
	"strings"
	"time"
)

// Events is a set of readiness conditions reported for a descriptor.
type Events uint32

const (
	Readable Events = 1 << iota
	Writable
	HangUp
	Failed
)

func (e Events) String() string {
	var parts []string
	for _, f := range []struct {
		bit  Events
		name string
	}{{Readable, "readable"}, {Writable, "writable"}, {HangUp, "hangup"}, {Failed, "error"}} {
		if e&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Handler is called when a registered descriptor is ready.
type Handler func(Events)

// Timer is a one-shot or periodic countdown driven by a Loop.
type Timer interface {
	// Start arms the timer to fire after d, and every d thereafter if
	// periodic is true. Starting an armed timer rearms it.
	Start(d time.Duration, periodic bool) error

	// Stop disarms the timer. A stopped timer never invokes its callback,
	// even if an expiration was already pending.
	Stop()

	// Close stops the timer and releases its resources.
	Close() error
}

// Loop is the registration interface of an event loop.
//
// Register, Deregister and NewTimer must only be called from the loop
// goroutine (that is, from inside a callback) or before the loop runs. Post is
// safe to call from any goroutine.
type Loop interface {
	// Register starts delivering readiness events for fd to h. The
	// registration is dropped by Deregister; events pending for an earlier
	// registration of the same descriptor are discarded.
	Register(fd int, h Handler) error

	// Deregister stops delivering events for fd.
	Deregister(fd int) error

	// NewTimer returns a disarmed timer that calls fn on expiry.
	NewTimer(fn func()) (Timer, error)

	// Post schedules fn to run on the loop goroutine.
	Post(fn func())
}
