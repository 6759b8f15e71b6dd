// Package rawsock sends hand-built IPv4 datagrams and receives raw inbound
// IPv4 datagrams, either from a raw socket or from a libpcap capture.
package rawsock

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

var (
	// ErrTimeout is returned by ReadPacket when nothing arrived in time.
	ErrTimeout = errors.New("rawsock: read timeout")
	// ErrClosed is returned when using a closed connection.
	ErrClosed = errors.New("rawsock: use of closed connection")
)

// SocketError wraps a failure of the underlying socket or capture handle.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("rawsock: %s: %v", e.Op, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// Conn is a raw IPv4 packet connection. WritePacket takes a complete IPv4
// datagram including its header; ReadPacket fills buf with one complete
// inbound IPv4 datagram.
type Conn interface {
	WritePacket(pkt []byte) error
	ReadPacket(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// destination returns the destination address of an IPv4 datagram.
func destination(pkt []byte) (netip.Addr, error) {
	if len(pkt) < 20 || pkt[0]>>4 != 4 {
		return netip.Addr{}, &SocketError{Op: "write", Err: errors.New("not an IPv4 datagram")}
	}
	return netip.AddrFrom4([4]byte(pkt[16:20])), nil
}
