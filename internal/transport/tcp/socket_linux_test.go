//go:build linux

package tcp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/omochice/messi/pkg/protocol"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (tcp.Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	conn, err := tcp.NewConn(fds[0])
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return conn, fds[1]
}

func TestConn_ReadWouldBlock(t *testing.T) {
	conn, _ := socketPair(t)
	defer conn.Close()

	_, err := conn.Read(make([]byte, 16))
	if !errors.Is(err, protocol.ErrWouldBlock) {
		t.Errorf("Read() error = %v, want ErrWouldBlock", err)
	}
}

func TestConn_Read(t *testing.T) {
	conn, peer := socketPair(t)
	defer conn.Close()

	if _, err := unix.Write(peer, []byte("test message")); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	buf := make([]byte, 4)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "test" {
		t.Errorf("Read() = %q, want %q", buf[:n], "test")
	}
}

func TestConn_ReadClosed(t *testing.T) {
	conn, peer := socketPair(t)
	defer conn.Close()

	unix.Close(peer)

	_, err := conn.Read(make([]byte, 16))
	if !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Errorf("Read() error = %v, want ErrConnectionClosed", err)
	}
}

func TestConn_Write(t *testing.T) {
	conn, peer := socketPair(t)
	defer conn.Close()

	n, err := conn.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	buf := make([]byte, 16)
	n, err = unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("peer received %q, want %q", buf[:n], "hello")
	}
}

func TestListenDial(t *testing.T) {
	ln, err := tcp.Listen(protocol.Address{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if ln.Addr().Port == 0 {
		t.Fatal("Listen() did not report the bound port")
	}

	if _, err := ln.Accept(); !errors.Is(err, protocol.ErrWouldBlock) {
		t.Errorf("Accept() on empty backlog error = %v, want ErrWouldBlock", err)
	}

	client, err := tcp.SocketDialer{Timeout: time.Second}.Dial(ln.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	var server tcp.Conn
	for i := 0; i < 100 && server == nil; i++ {
		server, err = ln.Accept()
		if errors.Is(err, protocol.ErrWouldBlock) {
			time.Sleep(10 * time.Millisecond)
			continue
		} else if err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
	}
	if server == nil {
		t.Fatal("Accept() never returned a connection")
	}
	defer server.Close()

	if server.RemoteAddr() == "" {
		t.Error("RemoteAddr() returned empty string")
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := tcp.Listen(protocol.Address{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr()
	ln.Close()

	_, err = tcp.SocketDialer{}.Dial(addr)
	if !errors.Is(err, unix.ECONNREFUSED) {
		t.Errorf("Dial() error = %v, want ECONNREFUSED", err)
	}
}
