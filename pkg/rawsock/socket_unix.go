//go:build linux || darwin || freebsd

package rawsock

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type socketConn struct {
	fd int

	mu      sync.Mutex
	closed  bool
	timeout time.Duration // Receive timeout currently set on fd
}

// Open returns a raw IPv4 TCP socket with IP_HDRINCL set, so written
// datagrams carry their own IPv4 header.
func Open() (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_TCP)
	if err != nil {
		return nil, &SocketError{Op: "socket", Err: err}
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd)
		return nil, &SocketError{Op: "setsockopt IP_HDRINCL", Err: err}
	}
	slog.Debug("Opened raw socket", "fd", fd)
	return &socketConn{fd: fd, timeout: -1}, nil
}

func (c *socketConn) WritePacket(pkt []byte) error {
	dst, err := destination(pkt)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	sa := &unix.SockaddrInet4{Addr: dst.As4()}
	if err := unix.Sendto(c.fd, kernelHeaderOrder(pkt), 0, sa); err != nil {
		return &SocketError{Op: "sendto", Err: err}
	}
	return nil
}

// ReadPacket blocks for at most timeout. A zero timeout blocks until a
// datagram arrives.
func (c *socketConn) ReadPacket(buf []byte, timeout time.Duration) (int, error) {
	if err := c.setTimeout(timeout); err != nil {
		return 0, err
	}
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return 0, ErrTimeout
	case c.isClosed():
		return 0, ErrClosed
	default:
		return 0, &SocketError{Op: "recvfrom", Err: err}
	}
}

func (c *socketConn) setTimeout(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if timeout == c.timeout {
		return nil
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return &SocketError{Op: "setsockopt SO_RCVTIMEO", Err: err}
	}
	c.timeout = timeout
	return nil
}

func (c *socketConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *socketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := unix.Close(c.fd); err != nil {
		return &SocketError{Op: "close", Err: err}
	}
	return nil
}
