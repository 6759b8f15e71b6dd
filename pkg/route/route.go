// Package route selects the local source address used to reach an IPv4
// destination.
package route

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
)

var (
	ErrNotIPv4 = errors.New("destination is not an IPv4 address")
	ErrNoRoute = errors.New("no route to destination")
)

// Route is the kernel's choice for reaching Destination. Gateway is invalid
// for directly connected destinations or when the platform does not report
// it.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr
	Source      netip.Addr
	Interface   *net.Interface
}

// Get returns the route the kernel would use for ip.
func Get(ip netip.Addr) (Route, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Route{}, fmt.Errorf("%w: %v", ErrNotIPv4, ip)
	}
	r, err := get(ip)
	if err != nil {
		return Route{}, fmt.Errorf("%w %v: %w", ErrNoRoute, ip, err)
	}
	return r, nil
}

// Source is a shortcut for Get(ip).Source.
func Source(ip netip.Addr) (netip.Addr, error) {
	r, err := Get(ip)
	if err != nil {
		return netip.Addr{}, err
	}
	slog.Debug("Route selected", "destination", ip, "gateway", r.Gateway, "source", r.Source, "interface", r.Interface.Name)
	return r.Source, nil
}

// Variable for mocking in tests.
var interfaceByIndex = net.InterfaceByIndex
