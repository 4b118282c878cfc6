package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/omochice/messi/internal/transport/ws"
	"github.com/rs/zerolog"
)

func TestServe_DebugFailureStopsBridge(t *testing.T) {
	defer leaktest.Check(t)()

	bridge, err := ws.NewBridge("tcp://127.0.0.1:6000")
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), bridge, lst, "127.0.0.1:-1", zerolog.Nop()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("serve() error = nil, want the debug listen error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after the debug server failed")
	}
}

func TestServe_Cancel(t *testing.T) {
	defer leaktest.Check(t)()

	bridge, err := ws.NewBridge("tcp://127.0.0.1:6000")
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, bridge, lst, "", zerolog.Nop()) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}
