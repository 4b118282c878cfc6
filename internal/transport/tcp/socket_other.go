//go:build !linux

package tcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/omochice/messi/pkg/protocol"
)

// SocketDialer is only implemented on Linux.
type SocketDialer struct {
	Timeout time.Duration
}

// Dial implements Dialer.
func (SocketDialer) Dial(addr protocol.Address) (Conn, error) {
	return nil, fmt.Errorf("%w: dial %s: %w", protocol.ErrSocketSetup, addr, errors.ErrUnsupported)
}

// Listen is only implemented on Linux.
func Listen(addr protocol.Address) (Listener, error) {
	return nil, fmt.Errorf("%w: listen %s: %w", protocol.ErrSocketSetup, addr, errors.ErrUnsupported)
}
