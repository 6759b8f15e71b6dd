//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package route

import (
	"errors"
	"net/netip"
)

func get(netip.Addr) (Route, error) {
	return Route{}, errors.ErrUnsupported
}
