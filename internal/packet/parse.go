package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
)

var (
	ErrTruncated = errors.New("truncated packet")
	ErrMalformed = errors.New("malformed IPv4 header")
	ErrNotIPv4   = errors.New("not an IPv4 datagram")
	ErrNotTCP    = errors.New("not a TCP segment")
	ErrNotSynAck = errors.New("not a SYN/ACK segment")
)

const (
	synAckFlags   = tcpFlagSYN | tcpFlagACK
	tcpFlagsIndex = 13
)

// SynAck holds the fields of an inbound SYN/ACK needed to correlate it with
// a probe.
type SynAck struct {
	Source     netip.Addr
	SourcePort uint16
	DestPort   uint16
	Ack        uint32
}

// Seq returns the sequence number of the probe this SYN/ACK answers.
func (s SynAck) Seq() uint32 {
	return s.Ack - 1
}

// HeaderLen returns the IPv4 header length in bytes, options included.
func HeaderLen(buf []byte) (int, error) {
	if len(buf) < ipv4.HeaderLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	n := int(buf[0]&0x0f) * 4
	if n < ipv4.HeaderLen {
		return 0, fmt.Errorf("%w: header length %d", ErrMalformed, n)
	}
	return n, nil
}

// Protocol returns the IPv4 protocol field.
func Protocol(buf []byte) (uint8, error) {
	if len(buf) < 10 {
		return 0, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	return buf[9], nil
}

// SourceIPv4 returns the IPv4 source address.
func SourceIPv4(buf []byte) (netip.Addr, error) {
	if len(buf) < 16 {
		return netip.Addr{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	return netip.AddrFrom4([4]byte(buf[12:16])), nil
}

// tcpField returns the n bytes at offset off of the TCP header that follows
// the IPv4 header.
func tcpField(buf []byte, off, n int) ([]byte, error) {
	hl, err := HeaderLen(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < hl+off+n {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrTruncated, len(buf), hl+off+n)
	}
	return buf[hl+off : hl+off+n], nil
}

// IsTCPSynAck reports whether both the SYN and ACK flags are set. Other flag
// bits are ignored.
func IsTCPSynAck(buf []byte) (bool, error) {
	f, err := tcpField(buf, tcpFlagsIndex, 1)
	if err != nil {
		return false, err
	}
	return f[0]&synAckFlags == synAckFlags, nil
}

// TCPSourcePort returns the TCP source port.
func TCPSourcePort(buf []byte) (uint16, error) {
	f, err := tcpField(buf, 0, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(f), nil
}

// TCPDestPort returns the TCP destination port.
func TCPDestPort(buf []byte) (uint16, error) {
	f, err := tcpField(buf, 2, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(f), nil
}

// TCPAck returns the TCP acknowledgment number.
func TCPAck(buf []byte) (uint32, error) {
	f, err := tcpField(buf, 8, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(f), nil
}

// DecodeSynAck extracts the correlation fields of a TCP SYN/ACK carried in a
// raw IPv4 datagram.
func DecodeSynAck(buf []byte) (SynAck, error) {
	var s SynAck

	if len(buf) == 0 {
		return s, ErrTruncated
	}
	if buf[0]>>4 != ipv4.Version {
		return s, ErrNotIPv4
	}
	proto, err := Protocol(buf)
	if err != nil {
		return s, err
	}
	if proto != ProtocolTCP {
		return s, ErrNotTCP
	}
	// The flags byte lies past every other field read below.
	ok, err := IsTCPSynAck(buf)
	if err != nil {
		return s, err
	}
	if !ok {
		return s, ErrNotSynAck
	}

	s.Ack, _ = TCPAck(buf)
	s.Source, _ = SourceIPv4(buf)
	s.SourcePort, _ = TCPSourcePort(buf)
	s.DestPort, _ = TCPDestPort(buf)
	return s, nil
}
