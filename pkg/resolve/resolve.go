// Package resolve turns target hosts into IPv4 addresses, caching answers
// for the lifetime of their DNS records.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/miekg/dns"
)

const (
	// DefaultTTL is used for answers whose TTL is unknown (system resolver).
	DefaultTTL = 5 * time.Minute
	// DefaultTimeout bounds a single nameserver exchange.
	DefaultTimeout = 2 * time.Second
)

var ErrNoAddress = errors.New("no IPv4 address")

// LookupFunc returns the IPv4 addresses of host and how long they may be
// cached. A zero TTL means the resolver default.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, time.Duration, error)

type Resolver struct {
	cache  *ttlcache.Cache[string, netip.Addr]
	lookup LookupFunc
}

type Option func(*Resolver)

// WithNameserver sends A queries straight to nameserver (ip or ip:port)
// instead of using the system resolver.
func WithNameserver(nameserver string) Option {
	return func(r *Resolver) {
		r.lookup = nameserverLookup(nameserver, DefaultTimeout)
	}
}

// WithLookupFunc replaces the lookup, mainly for tests.
func WithLookupFunc(fn LookupFunc) Option {
	return func(r *Resolver) {
		r.lookup = fn
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		cache: ttlcache.New[string, netip.Addr](
			ttlcache.WithTTL[string, netip.Addr](DefaultTTL),
			ttlcache.WithDisableTouchOnHit[string, netip.Addr](),
		),
		lookup: systemLookup,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the IPv4 address of host. IPv4 literals are returned as
// is; IPv6 literals are rejected.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%w: %s is not IPv4", ErrNoAddress, host)
		}
		return addr, nil
	}

	if item := r.cache.Get(host); item != nil {
		return item.Value(), nil
	}

	addrs, ttl, err := r.lookup(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if addr = addr.Unmap(); addr.Is4() {
			if ttl <= 0 {
				ttl = ttlcache.DefaultTTL
			}
			r.cache.Set(host, addr, ttl)
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w for %s", ErrNoAddress, host)
}

func systemLookup(ctx context.Context, host string) ([]netip.Addr, time.Duration, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	return addrs, 0, err
}

func nameserverLookup(nameserver string, timeout time.Duration) LookupFunc {
	if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}
	c := &dns.Client{
		Net:     "udp",
		Timeout: timeout,
	}

	return func(ctx context.Context, host string) ([]netip.Addr, time.Duration, error) {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), dns.TypeA)
		m.RecursionDesired = true

		resp, _, err := c.ExchangeContext(ctx, m, nameserver)
		if err != nil {
			return nil, 0, err
		}
		if resp.Rcode != dns.RcodeSuccess {
			return nil, 0, fmt.Errorf("nameserver %s answered %s", nameserver, dns.RcodeToString[resp.Rcode])
		}

		var (
			addrs  []netip.Addr
			minTTL uint32
		)
		for _, rr := range resp.Answer {
			a, ok := rr.(*dns.A)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(a.A)
			if !ok {
				continue
			}
			addrs = append(addrs, addr.Unmap())
			if minTTL == 0 || a.Hdr.Ttl < minTTL {
				minTTL = a.Hdr.Ttl
			}
		}
		return addrs, time.Duration(minTTL) * time.Second, nil
	}
}
