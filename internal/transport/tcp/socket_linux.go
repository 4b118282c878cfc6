//go:build linux

package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/omochice/messi/pkg/protocol"
	"golang.org/x/sys/unix"
)

// fdConn adapts a connected socket descriptor to Conn.
type fdConn struct {
	fd     int
	remote string
}

// NewConn wraps a connected descriptor, which is switched to non-blocking
// mode. The returned Conn owns fd.
func NewConn(fd int) (Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("%w: set non-blocking: %v", protocol.ErrSocketSetup, err)
	}
	return &fdConn{fd: fd, remote: peerName(fd)}, nil
}

func (c *fdConn) Fd() int { return c.fd }

func (c *fdConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, protocol.ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0 && len(p) > 0:
			return 0, protocol.ErrConnectionClosed
		}
		return n, nil
	}
}

func (c *fdConn) Write(p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, protocol.ErrWouldBlock
		case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
			return 0, fmt.Errorf("write: %w: %v", protocol.ErrConnectionClosed, err)
		case err != nil:
			return 0, fmt.Errorf("write: %w", err)
		}
		return n, nil
	}
}

func (c *fdConn) Close() error { return unix.Close(c.fd) }

func (c *fdConn) RemoteAddr() string { return c.remote }

func peerName(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrUnix:
		return "unix:" + a.Name
	default:
		return ""
	}
}

// resolve returns the socket family and address for addr. Host names are
// looked up with the default resolver, preferring IPv4.
func resolve(addr protocol.Address, timeout time.Duration) (int, unix.Sockaddr, error) {
	ip, err := netip.ParseAddr(addr.Host)
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ips, lerr := net.DefaultResolver.LookupNetIP(ctx, "ip", addr.Host)
		if lerr != nil {
			return 0, nil, fmt.Errorf("resolve %q: %w", addr.Host, lerr)
		} else if len(ips) == 0 {
			return 0, nil, fmt.Errorf("resolve %q: no addresses", addr.Host)
		}
		ip = ips[0]
		for _, cand := range ips {
			if cand.Is4() || cand.Is4In6() {
				ip = cand
				break
			}
		}
	}
	ip = ip.Unmap()
	if ip.Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: addr.Port, Addr: ip.As4()}, nil
	}
	return unix.AF_INET6, &unix.SockaddrInet6{Port: addr.Port, Addr: ip.As16()}, nil
}

// SocketDialer connects with a bounded connect timeout and hands back a
// non-blocking socket.
type SocketDialer struct {
	Timeout time.Duration // zero means one second
}

// Dial implements Dialer.
func (d SocketDialer) Dial(addr protocol.Address) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	family, sa, err := resolve(addr, timeout)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", protocol.ErrSocketSetup, err)
	}
	if err := connectWait(fd, sa, timeout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return &fdConn{fd: fd, remote: addr.String()}, nil
}

func connectWait(fd int, sa unix.Sockaddr, timeout time.Duration) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EINTR {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return unix.ETIMEDOUT
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(wait/time.Millisecond)+1)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return err
		}
		if n > 0 {
			break
		}
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// SocketListener is a non-blocking listening socket.
type SocketListener struct {
	fd   int
	addr protocol.Address
}

// DefaultBacklog is the listen backlog used by Listen.
const DefaultBacklog = 5

// Listen creates a non-blocking listener bound to addr with SO_REUSEADDR set.
// Port zero binds an ephemeral port, reported by Addr.
func Listen(addr protocol.Address) (Listener, error) {
	family, sa, err := resolve(addr, time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrSocketSetup, err)
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", protocol.ErrSocketSetup, err)
	}
	fail := func(op string, err error) (Listener, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s %s: %v", protocol.ErrSocketSetup, op, addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, DefaultBacklog); err != nil {
		return fail("listen", err)
	}
	bound := addr
	if local, err := unix.Getsockname(fd); err == nil {
		if ap, perr := netip.ParseAddrPort(sockaddrString(local)); perr == nil {
			bound.Port = int(ap.Port())
		}
	}
	return &SocketListener{fd: fd, addr: bound}, nil
}

// Fd implements Listener.
func (l *SocketListener) Fd() int { return l.fd }

// Addr implements Listener.
func (l *SocketListener) Addr() protocol.Address { return l.addr }

// Accept implements Listener.
func (l *SocketListener) Accept() (Conn, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return nil, protocol.ErrWouldBlock
		case err != nil:
			return nil, fmt.Errorf("accept: %w", err)
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		return &fdConn{fd: nfd, remote: sockaddrString(sa)}, nil
	}
}

// Close implements Listener.
func (l *SocketListener) Close() error { return unix.Close(l.fd) }

// String returns the listener address.
func (l *SocketListener) String() string {
	return net.JoinHostPort(l.addr.Host, strconv.Itoa(l.addr.Port))
}
