//go:build linux

package loop_test

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/omochice/messi/internal/loop"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func newEpoll(t *testing.T) *loop.Epoll {
	t.Helper()
	l, err := loop.NewEpoll(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEpoll() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// pollUntil polls l until cond holds or the deadline passes.
func pollUntil(t *testing.T, l *loop.Epoll, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		if _, err := l.Poll(50 * time.Millisecond); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	}
}

func TestEpoll_Readable(t *testing.T) {
	l := newEpoll(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var got loop.Events
	if err := l.Register(fds[0], func(ev loop.Events) {
		got = ev
		var buf [16]byte
		unix.Read(fds[0], buf[:])
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := l.Register(fds[0], func(loop.Events) {}); err == nil {
		t.Error("Register() of a registered fd succeeded")
	}

	unix.Write(fds[1], []byte("x"))
	pollUntil(t, l, func() bool { return got != 0 })
	if got&loop.Readable == 0 {
		t.Errorf("events = %v, want readable", got)
	}

	if err := l.Deregister(fds[0]); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	got = 0
	unix.Write(fds[1], []byte("y"))
	if _, err := l.Poll(20 * time.Millisecond); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if got != 0 {
		t.Errorf("handler called after Deregister with %v", got)
	}
}

func TestEpoll_Timer(t *testing.T) {
	l := newEpoll(t)

	fired := 0
	tm, err := l.NewTimer(func() { fired++ })
	if err != nil {
		t.Fatalf("NewTimer() error = %v", err)
	}
	defer tm.Close()

	if err := tm.Start(5*time.Millisecond, false); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pollUntil(t, l, func() bool { return fired == 1 })

	// A one-shot timer does not fire again.
	l.Poll(20 * time.Millisecond)
	if fired != 1 {
		t.Errorf("one-shot timer fired %d times, want 1", fired)
	}

	if err := tm.Start(5*time.Millisecond, true); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pollUntil(t, l, func() bool { return fired >= 3 })

	tm.Stop()
	before := fired
	time.Sleep(15 * time.Millisecond)
	l.Poll(20 * time.Millisecond)
	if fired != before {
		t.Errorf("stopped timer fired %d more times", fired-before)
	}
}

func TestEpoll_PostAndRun(t *testing.T) {
	defer leaktest.Check(t)()

	l := newEpoll(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	ran := make(chan int, 3)
	for i := range 3 {
		l.Post(func() { ran <- i })
	}
	for want := range 3 {
		select {
		case got := <-ran:
			if got != want {
				t.Errorf("posted callback %d ran, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("posted callback did not run")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
