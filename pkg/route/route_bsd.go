//go:build darwin || freebsd || netbsd || openbsd

package route

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/net/route"
)

// Positions in RouteMessage.Addrs (RTAX_*)
const (
	addrDst     = 0
	addrGateway = 1
	addrNetmask = 2
	addrIfa     = 5
)

// fetchRIBMessages retrieves the IPv4 routing table from the kernel.
// Variable for mocking in tests.
var fetchRIBMessages = func() ([]route.Message, error) {
	rib, err := route.FetchRIB(syscall.AF_INET, route.RIBTypeRoute, 0)
	if err != nil {
		return nil, err
	}
	return route.ParseRIB(route.RIBTypeRoute, rib)
}

func inet4(addrs []route.Addr, i int) (netip.Addr, bool) {
	if i >= len(addrs) {
		return netip.Addr{}, false
	}
	a, ok := addrs[i].(*route.Inet4Addr)
	if !ok {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4(a.IP), true
}

// prefixLen returns the prefix length of a route, 32 for host routes.
// Routes without a usable netmask are skipped.
func prefixLen(rm *route.RouteMessage) (int, bool) {
	if rm.Flags&syscall.RTF_HOST != 0 {
		return 32, true
	}
	mask, ok := inet4(rm.Addrs, addrNetmask)
	if !ok {
		return 0, false
	}
	m := mask.As4()
	ones, bits := net.IPv4Mask(m[0], m[1], m[2], m[3]).Size()
	if bits == 0 {
		// non-canonical mask
		return 0, false
	}
	return ones, true
}

// mostSpecificRoute finds the longest prefix match for ip among the up
// routes. On equal prefix length the first route wins.
func mostSpecificRoute(ip netip.Addr, msgs []route.Message) (Route, error) {
	var best *route.RouteMessage
	bestLen := -1

	for _, msg := range msgs {
		rm, ok := msg.(*route.RouteMessage)
		if !ok || rm.Flags&syscall.RTF_UP == 0 {
			continue
		}
		dst, ok := inet4(rm.Addrs, addrDst)
		if !ok {
			continue
		}
		bits, ok := prefixLen(rm)
		if !ok || !netip.PrefixFrom(dst, bits).Contains(ip) {
			continue
		}
		if bits > bestLen {
			best, bestLen = rm, bits
		}
	}
	if best == nil {
		return Route{}, errors.New("no matching route found")
	}

	src, ok := inet4(best.Addrs, addrIfa)
	if !ok {
		return Route{}, errors.New("route has no IPv4 source address")
	}
	// Directly connected routes carry a link address as gateway
	gw, _ := inet4(best.Addrs, addrGateway)

	intf, err := interfaceByIndex(best.Index)
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %w", best.Index, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}

	return Route{
		Destination: ip,
		Gateway:     gw,
		Source:      src,
		Interface:   intf,
	}, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRIBMessages()
	if err != nil {
		return Route{}, err
	}
	return mostSpecificRoute(ip, msgs)
}
