package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/ipv4"
)

// ErrInvalidAddress is returned for address literals that are not IPv4
// dotted quads.
var ErrInvalidAddress = errors.New("invalid IPv4 address")

const (
	// TCPHeaderLen is the length of a TCP header without options.
	TCPHeaderLen = 20
	// SYNLen is the length of a complete probe datagram.
	SYNLen = ipv4.HeaderLen + TCPHeaderLen

	ProtocolTCP = 6

	DefaultID     = 1
	DefaultTTL    = 64
	DefaultWindow = 0x2000

	tcpDataOffset = TCPHeaderLen / 4 << 4 // 0x50
	tcpFlagSYN    = 0x02
	tcpFlagACK    = 0x10
)

// Builder assembles IPv4 datagrams carrying a bare TCP SYN segment. The IPv4
// header never carries options and the TCP header never carries options,
// which leaves the sequence number free to be used as a probe identifier.
type Builder struct {
	Source netip.Addr
	ID     uint16
	TTL    uint8
	Window uint16
}

// NewBuilder returns a Builder with the default identification, TTL and
// window size for the given source address.
func NewBuilder(src netip.Addr) *Builder {
	return &Builder{
		Source: src,
		ID:     DefaultID,
		TTL:    DefaultTTL,
		Window: DefaultWindow,
	}
}

// ParseIPv4 parses a dotted-quad IPv4 literal.
func ParseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return addr, nil
}

// IPv4Header builds a 20-byte IPv4 header addressed to dst for a payload of
// payloadLen bytes. The total length field is derived from payloadLen.
func (b *Builder) IPv4Header(dst string, payloadLen int) ([]byte, error) {
	addr, err := ParseIPv4(dst)
	if err != nil {
		return nil, err
	}
	return b.ipv4Header(addr, payloadLen)
}

func (b *Builder) ipv4Header(dst netip.Addr, payloadLen int) ([]byte, error) {
	if !b.Source.Is4() {
		return nil, fmt.Errorf("%w: source %v", ErrInvalidAddress, b.Source)
	}
	if !dst.Is4() {
		return nil, fmt.Errorf("%w: destination %v", ErrInvalidAddress, dst)
	}
	if payloadLen < 0 || payloadLen > 0xffff-ipv4.HeaderLen {
		return nil, fmt.Errorf("payload length %d out of range", payloadLen)
	}

	h := make([]byte, ipv4.HeaderLen)
	h[0] = ipv4.Version<<4 | ipv4.HeaderLen/4
	binary.BigEndian.PutUint16(h[2:4], uint16(ipv4.HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(h[4:6], b.ID)
	// h[6:8] flags and fragment offset stay zero
	h[8] = b.TTL
	h[9] = ProtocolTCP
	src, d := b.Source.As4(), dst.As4()
	copy(h[12:16], src[:])
	copy(h[16:20], d[:])

	sum, err := Checksum(h)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(h[10:12], sum)
	return h, nil
}

// TCPSyn builds a 20-byte TCP segment with only the SYN flag set. The
// checksum covers the pseudo-header derived from ipHeader.
func (b *Builder) TCPSyn(ipHeader []byte, srcPort, dstPort uint16, seq uint32) ([]byte, error) {
	s := make([]byte, TCPHeaderLen)
	binary.BigEndian.PutUint16(s[0:2], srcPort)
	binary.BigEndian.PutUint16(s[2:4], dstPort)
	binary.BigEndian.PutUint32(s[4:8], seq)
	// s[8:12] acknowledgment number stays zero
	s[12] = tcpDataOffset
	s[13] = tcpFlagSYN
	binary.BigEndian.PutUint16(s[14:16], b.Window)

	sum, err := TCPChecksum(ipHeader, s)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(s[16:18], sum)
	return s, nil
}

// SYN builds a complete probe datagram: IPv4 header followed by a TCP SYN
// segment whose sequence number is seq.
func (b *Builder) SYN(dst netip.Addr, srcPort, dstPort uint16, seq uint32) ([]byte, error) {
	ip, err := b.ipv4Header(dst, TCPHeaderLen)
	if err != nil {
		return nil, err
	}
	tcp, err := b.TCPSyn(ip, srcPort, dstPort, seq)
	if err != nil {
		return nil, err
	}
	return append(ip, tcp...), nil
}

// TCPChecksum computes the TCP checksum of segment over the IPv4
// pseudo-header (source, destination, zero, protocol, TCP length) taken from
// ipHeader.
func TCPChecksum(ipHeader, segment []byte) (uint16, error) {
	if len(ipHeader) < ipv4.HeaderLen {
		return 0, fmt.Errorf("%w: IPv4 header is %d bytes", ErrTruncated, len(ipHeader))
	}
	if len(segment) > 0xffff {
		return 0, fmt.Errorf("segment length %d out of range", len(segment))
	}

	buf := make([]byte, 12+len(segment))
	copy(buf[0:8], ipHeader[12:20])
	buf[9] = ProtocolTCP
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(segment)))
	copy(buf[12:], segment)

	return Checksum(buf)
}
