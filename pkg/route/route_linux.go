//go:build linux

package route

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// fetchRoutes asks the kernel (RTM_GETROUTE) which route it would use for ip.
// Variable for mocking in tests.
var fetchRoutes = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Route.Get(&rtnetlink.RouteMessage{
		Family: unix.AF_INET,
		Table:  unix.RT_TABLE_MAIN,
		Attributes: rtnetlink.RouteAttributes{
			Dst: ip.AsSlice(),
		},
	})
}

// routeFromMessages converts the kernel answer for ip into a Route.
func routeFromMessages(ip netip.Addr, msgs []rtnetlink.RouteMessage) (Route, error) {
	switch len(msgs) {
	case 0:
		return Route{}, errors.New("kernel returned no route")
	case 1:
	default:
		return Route{}, fmt.Errorf("kernel returned %d routes", len(msgs))
	}
	attrs := msgs[0].Attributes

	dst, ok := netip.AddrFromSlice(attrs.Dst)
	if !ok || dst.Unmap() != ip {
		return Route{}, fmt.Errorf("route destination %v does not match", attrs.Dst)
	}
	src, ok := netip.AddrFromSlice(attrs.Src)
	if !ok || !src.Unmap().Is4() {
		return Route{}, fmt.Errorf("route has no IPv4 source address: %v", attrs.Src)
	}
	gw, _ := netip.AddrFromSlice(attrs.Gateway)

	intf, err := interfaceByIndex(int(attrs.OutIface))
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %w", attrs.OutIface, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}

	return Route{
		Destination: ip,
		Gateway:     gw.Unmap(),
		Source:      src.Unmap(),
		Interface:   intf,
	}, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRoutes(ip)
	if err != nil {
		return Route{}, err
	}
	return routeFromMessages(ip, msgs)
}
