package wsproto

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Listen binds an IPv4 TCP listener on host:port with SO_REUSEADDR set (so a
// restarted server does not wait out TIME_WAIT on the old socket), and
// returns a net.Listener whose Accept sets TCP_NODELAY on every accepted
// connection, per §4.1.
func Listen(host string, port int) (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("wsproto: listen %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("wsproto: listen %s: not a TCP listener", addr)
	}
	return &noDelayListener{tcpLn}, nil
}

// noDelayListener wraps a *net.TCPListener to set TCP_NODELAY on every
// connection it accepts, so blendshape frames are not held up by Nagle
// buffering waiting for more data to coalesce.
type noDelayListener struct {
	*net.TCPListener
}

func (l *noDelayListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err := conn.SetNoDelay(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wsproto: set TCP_NODELAY: %w", err)
	}
	return conn, nil
}
