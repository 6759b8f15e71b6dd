package probe

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/internal/target"
)

// Resolver maps a host to its IPv4 address
type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// SourceFunc returns the local address to probe dst from
type SourceFunc func(dst netip.Addr) (netip.Addr, error)

// FixedSource always returns addr, for probing out of a chosen interface
func FixedSource(addr netip.Addr) SourceFunc {
	return func(netip.Addr) (netip.Addr, error) {
		return addr, nil
	}
}

// ResolveDestinations resolves every target and picks its source address.
// Targets that fail either step are logged and skipped; duplicates are
// dropped keeping the first occurrence.
func ResolveDestinations(ctx context.Context, targets []target.Target, r Resolver, source SourceFunc) []shared.Destination {
	seen := make(map[shared.DestinationKey]bool)
	var destinations []shared.Destination

	for _, t := range targets {
		addr, err := r.Resolve(ctx, t.Host)
		if err != nil {
			slog.Warn("Skipping target", "target", t, "error", err)
			continue
		}
		key := shared.DestinationKey{Addr: addr, Port: t.Port}
		if seen[key] {
			continue
		}

		src, err := source(addr)
		if err != nil {
			slog.Warn("Skipping target, no source address", "target", t, "error", err)
			continue
		}
		seen[key] = true
		destinations = append(destinations, shared.Destination{
			Key:    key,
			Host:   t.Host,
			Source: src,
		})
		slog.Debug("Resolved destination", "target", t, "destination", key, "source", src)
	}
	return destinations
}
