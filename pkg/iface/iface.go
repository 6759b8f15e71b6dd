// Package iface resolves a network interface name to the IPv4 address used
// as probe source.
package iface

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var (
	ErrDown   = errors.New("interface is down")
	ErrNoIPv4 = errors.New("interface has no IPv4 address")
)

// Variable for mocking in tests.
var interfaceByName = net.InterfaceByName

// Lookup returns the named interface and its first IPv4 address.
func Lookup(name string) (*net.Interface, netip.Addr, error) {
	intf, err := interfaceByName(name)
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("failed to find interface %s: %w", name, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return nil, netip.Addr{}, fmt.Errorf("%s: %w", name, ErrDown)
	}
	addrs, err := intf.Addrs()
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("failed to list addresses of %s: %w", name, err)
	}
	addr, ok := firstIPv4(addrs)
	if !ok {
		return nil, netip.Addr{}, fmt.Errorf("%s: %w", name, ErrNoIPv4)
	}
	return intf, addr, nil
}

func firstIPv4(addrs []net.Addr) (netip.Addr, bool) {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok && addr.Unmap().Is4() {
			return addr.Unmap(), true
		}
	}
	return netip.Addr{}, false
}
