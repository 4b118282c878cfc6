//go:build linux

package loop

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const maxEvents = 64

// registration ties a descriptor to its handler. The token is stored in the
// kernel event so readiness reported for a replaced registration of the same
// descriptor can be recognized and dropped.
type registration struct {
	token int32
	h     Handler
}

// Epoll is a Loop built on epoll, timerfd and eventfd.
type Epoll struct {
	epfd   int
	wakefd int
	log    zerolog.Logger

	regs      map[int]registration
	nextToken int32
	events    []unix.EpollEvent

	mu     sync.Mutex
	posted *queue.Queue
	closed bool
}

// NewEpoll creates an epoll loop. The logger may be zerolog.Nop().
func NewEpoll(log zerolog.Logger) (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	l := &Epoll{
		epfd:   epfd,
		wakefd: wakefd,
		log:    log,
		regs:   make(map[int]registration),
		events: make([]unix.EpollEvent, maxEvents),
		posted: queue.New(),
	}
	if err := l.Register(wakefd, l.drainPosted); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return l, nil
}

// Register implements Loop.
func (l *Epoll) Register(fd int, h Handler) error {
	if _, ok := l.regs[fd]; ok {
		return fmt.Errorf("epoll ctl add: fd %d already registered", fd)
	}
	l.nextToken++
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd), Pad: l.nextToken}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	l.regs[fd] = registration{token: l.nextToken, h: h}
	return nil
}

// Deregister implements Loop.
func (l *Epoll) Deregister(fd int) error {
	if _, ok := l.regs[fd]; !ok {
		return nil
	}
	delete(l.regs, fd)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Post implements Loop.
func (l *Epoll) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.posted.Add(fn)
	l.mu.Unlock()

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(l.wakefd, one[:]); err != nil && err != unix.EAGAIN {
		l.log.Error().Err(err).Msg("eventfd write failed")
	}
}

func (l *Epoll) drainPosted(Events) {
	if err := readWake(l.wakefd); err != nil {
		l.log.Error().Err(err).Msg("eventfd read failed")
	}

	l.mu.Lock()
	fns := make([]func(), 0, l.posted.Length())
	for l.posted.Length() > 0 {
		fns = append(fns, l.posted.Remove().(func()))
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Poll waits up to timeout for events and dispatches them. A negative timeout
// waits indefinitely. It returns the number of events dispatched.
func (l *Epoll) Poll(timeout time.Duration) (int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(l.epfd, l.events, msec)
	if err == unix.EINTR {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	dispatched := 0
	for _, ev := range l.events[:n] {
		reg, ok := l.regs[int(ev.Fd)]
		if !ok || reg.token != ev.Pad {
			continue
		}
		reg.h(toEvents(ev.Events))
		dispatched++
	}
	return dispatched, nil
}

func toEvents(e uint32) Events {
	var out Events
	if e&unix.EPOLLIN != 0 {
		out |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		out |= Writable
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		out |= HangUp
	}
	if e&unix.EPOLLERR != 0 {
		out |= Failed
	}
	return out
}

// Run dispatches events until ctx ends or polling fails.
func (l *Epoll) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.Post(func() {}) })
	defer stop()
	for ctx.Err() == nil {
		if _, err := l.Poll(-1); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the loop. Registered descriptors are not closed.
func (l *Epoll) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return errors.Join(unix.Close(l.wakefd), unix.Close(l.epfd))
}

// NewTimer implements Loop with a timerfd.
func (l *Epoll) NewTimer(fn func()) (Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: timerfd create: %v", protocol.ErrTimer, err)
	}
	t := &timerfd{l: l, fd: fd, fn: fn}
	if err := l.Register(fd, t.expired); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", protocol.ErrTimer, err)
	}
	return t, nil
}

type timerfd struct {
	l        *Epoll
	fd       int
	fn       func()
	armed    bool
	periodic bool
}

func (t *timerfd) Start(d time.Duration, periodic bool) error {
	if t.fd < 0 {
		return fmt.Errorf("%w: timer closed", protocol.ErrTimer)
	}
	if d <= 0 {
		d = time.Nanosecond
	}
	its := unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
	if periodic {
		its.Interval = its.Value
	}
	if err := unix.TimerfdSettime(t.fd, 0, &its, nil); err != nil {
		return fmt.Errorf("%w: timerfd settime: %v", protocol.ErrTimer, err)
	}
	t.armed, t.periodic = true, periodic
	return nil
}

func (t *timerfd) Stop() {
	if !t.armed {
		return
	}
	t.armed = false
	if err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{}, nil); err != nil {
		t.l.log.Warn().Err(err).Int("fd", t.fd).Msg("timer disarm failed")
	}
}

func (t *timerfd) Close() error {
	if t.fd < 0 {
		return nil
	}
	t.Stop()
	derr := t.l.Deregister(t.fd)
	cerr := unix.Close(t.fd)
	t.fd = -1
	return errors.Join(derr, cerr)
}

func (t *timerfd) expired(Events) {
	var buf [8]byte
	if _, err := unix.Read(t.fd, buf[:]); err != nil {
		return // spurious or already consumed
	}
	if !t.armed {
		return
	}
	if !t.periodic {
		t.armed = false
	}
	t.fn()
}

// readWake resets the eventfd counter. An already reset counter is not an
// error.
func readWake(fd int) error {
	var buf [8]byte
	if _, err := unix.Read(fd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}
