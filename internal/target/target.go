package target

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"unicode"
)

// ErrFormat is returned for target strings that do not follow the
// <ip-range>:<port-range> syntax.
var ErrFormat = errors.New("malformed target")

// Target is one concrete host and port to probe. Host is either a dotted
// quad produced by range expansion or a hostname to be resolved.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// Expand parses a target string such as "1-5,9.10.11-12.0:80-90,5000" and
// returns the cross-product of every address and every port it describes.
// Addresses vary slowest in the first octet; ports vary fastest.
func Expand(arg string) ([]Target, error) {
	hostPart, portPart, ok := strings.Cut(strings.TrimSpace(arg), ":")
	if !ok || strings.Contains(portPart, ":") {
		return nil, fmt.Errorf("%w: %q: want <ip-range>:<port-range>", ErrFormat, arg)
	}

	hosts, err := expandHosts(strings.TrimSpace(hostPart))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", arg, err)
	}
	ports, err := expandPorts(portPart)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", arg, err)
	}

	targets := make([]Target, 0, len(hosts)*len(ports))
	for _, h := range hosts {
		for _, p := range ports {
			targets = append(targets, Target{Host: h, Port: p})
		}
	}
	return targets, nil
}

// ExpandAll expands each argument independently and concatenates the results.
// Malformed args are logged and skipped.
func ExpandAll(args []string) []Target {
	var targets []Target
	for _, arg := range args {
		t, err := Expand(arg)
		if err != nil {
			slog.Warn("Skipping target", "target", arg, "error", err)
			continue
		}
		targets = append(targets, t...)
	}
	return targets
}

func expandHosts(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty host", ErrFormat)
	}
	if strings.IndexFunc(s, unicode.IsLetter) >= 0 {
		// Hostnames are taken literally and resolved later.
		if strings.ContainsAny(s, ", ") {
			return nil, fmt.Errorf("%w: hostname %q", ErrFormat, s)
		}
		return []string{s}, nil
	}

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %q has %d octets, want 4", ErrFormat, s, len(parts))
	}
	octets := make([][]int, len(parts))
	for i, p := range parts {
		seq, err := parseSequence(p, 0, 255)
		if err != nil {
			return nil, fmt.Errorf("octet %d: %w", i+1, err)
		}
		octets[i] = seq
	}

	var hosts []string
	for _, combo := range product(octets) {
		strs := make([]string, len(combo))
		for i, o := range combo {
			strs[i] = strconv.Itoa(o)
		}
		hosts = append(hosts, strings.Join(strs, "."))
	}
	return hosts, nil
}

func expandPorts(s string) ([]uint16, error) {
	seq, err := parseSequence(s, 1, 65535)
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	ports := make([]uint16, len(seq))
	for i, p := range seq {
		ports[i] = uint16(p)
	}
	return ports, nil
}

// parseSequence parses "item(,item)*" where item is N or N-M, expanding
// ranges inline. Every value must lie in [lo, hi].
func parseSequence(s string, lo, hi int) ([]int, error) {
	var out []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		start, stop, isRange := strings.Cut(item, "-")
		a, err := parseNumber(start, lo, hi)
		if err != nil {
			return nil, err
		}
		if !isRange {
			out = append(out, a)
			continue
		}
		b, err := parseNumber(stop, lo, hi)
		if err != nil {
			return nil, err
		}
		if b < a {
			return nil, fmt.Errorf("%w: reverse range %q", ErrFormat, item)
		}
		for v := a; v <= b; v++ {
			out = append(out, v)
		}
	}
	return out, nil
}

func parseNumber(s string, lo, hi int) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q is not a number", ErrFormat, s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range %d-%d", ErrFormat, n, lo, hi)
	}
	return n, nil
}

// product returns the cross-product of lists, the first list varying
// slowest.
func product(lists [][]int) [][]int {
	result := [][]int{{}}
	for _, list := range lists {
		next := make([][]int, 0, len(result)*len(list))
		for _, prefix := range result {
			for _, v := range list {
				combo := make([]int, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, v))
			}
		}
		result = next
	}
	return result
}
