//go:build !linux && !darwin && !freebsd

package rawsock

import "errors"

// Open is not supported on this platform.
func Open() (Conn, error) {
	return nil, &SocketError{Op: "socket", Err: errors.ErrUnsupported}
}
