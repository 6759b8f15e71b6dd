package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// IPv4 header 1.2.3.4 -> 127.0.0.1 with the checksum field zeroed.
var zeroedIPHeader = []byte{
	0x45, 0x00, 0x00, 0x28, 0x00, 0x01, 0x00, 0x00, 0x40, 0x06,
	0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x7f, 0x00, 0x00, 0x01,
}

// TCP SYN/ACK segment 20 -> 80, seq 0, ack 0, checksum zeroed.
var zeroedSynAckSegment = []byte{
	0x00, 0x14, 0x00, 0x50, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x50, 0x12, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "empty",
			data: []byte{},
			want: 0xffff,
		},
		{
			name: "single word",
			data: []byte{0x00, 0x01},
			want: 0xfffe,
		},
		{
			name: "end-around carry",
			data: []byte{0xff, 0xff, 0x00, 0x02},
			want: 0xfffd,
		},
		{
			name: "IPv4 header with zeroed checksum",
			data: zeroedIPHeader,
			want: 63432,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Checksum(tt.data)
			if err != nil {
				t.Fatalf("Checksum() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Checksum() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChecksum_OddLength(t *testing.T) {
	_, err := Checksum([]byte{0x45, 0x00, 0x01})
	if !errors.Is(err, ErrOddLength) {
		t.Errorf("Checksum() error = %v, want ErrOddLength", err)
	}
}

func TestChecksum_ZeroPaddingPosition(t *testing.T) {
	a, _ := Checksum([]byte{0x12, 0x34, 0x00, 0x00, 0x56, 0x78})
	b, _ := Checksum([]byte{0x00, 0x00, 0x12, 0x34, 0x56, 0x78})
	c, _ := Checksum([]byte{0x12, 0x34, 0x56, 0x78, 0x00, 0x00})
	if a != b || b != c {
		t.Errorf("Checksum() differs with zero word position: %d %d %d", a, b, c)
	}
}

func TestTCPChecksum(t *testing.T) {
	got, err := TCPChecksum(zeroedIPHeader, zeroedSynAckSegment)
	if err != nil {
		t.Fatalf("TCPChecksum() unexpected error: %v", err)
	}
	if got != 3176 {
		t.Errorf("TCPChecksum() = %d, want 3176", got)
	}

	if _, err := TCPChecksum(zeroedIPHeader[:12], zeroedSynAckSegment); !errors.Is(err, ErrTruncated) {
		t.Errorf("TCPChecksum() with short header error = %v, want ErrTruncated", err)
	}
	if _, err := TCPChecksum(zeroedIPHeader, zeroedSynAckSegment[:19]); !errors.Is(err, ErrOddLength) {
		t.Errorf("TCPChecksum() with odd segment error = %v, want ErrOddLength", err)
	}
}

func TestBuilder_IPv4Header(t *testing.T) {
	b := NewBuilder(netip.MustParseAddr("1.2.3.4"))

	got, err := b.IPv4Header("127.0.0.1", TCPHeaderLen)
	if err != nil {
		t.Fatalf("IPv4Header() unexpected error: %v", err)
	}

	want := append([]byte(nil), zeroedIPHeader...)
	want[10], want[11] = 0xf7, 0xc8
	if !bytes.Equal(got, want) {
		t.Errorf("IPv4Header() = % x, want % x", got, want)
	}

	if sum, _ := Checksum(got); sum != 0 {
		t.Errorf("Checksum() over finished header = %d, want 0", sum)
	}
}

func TestBuilder_IPv4HeaderTotalLength(t *testing.T) {
	b := NewBuilder(netip.MustParseAddr("10.0.0.1"))

	got, err := b.IPv4Header("10.0.0.2", 32)
	if err != nil {
		t.Fatalf("IPv4Header() unexpected error: %v", err)
	}
	if total := binary.BigEndian.Uint16(got[2:4]); total != 52 {
		t.Errorf("total length = %d, want 52", total)
	}
	if got[8] != DefaultTTL || got[9] != ProtocolTCP || binary.BigEndian.Uint16(got[4:6]) != DefaultID {
		t.Errorf("header = % x, want TTL %d protocol %d id %d", got, DefaultTTL, ProtocolTCP, DefaultID)
	}
}

func TestBuilder_IPv4HeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		source netip.Addr
		dst    string
	}{
		{"not an address", netip.MustParseAddr("1.2.3.4"), "1.2.3"},
		{"octet out of range", netip.MustParseAddr("1.2.3.4"), "1.2.3.256"},
		{"IPv6 destination", netip.MustParseAddr("1.2.3.4"), "2001:db8::1"},
		{"hostname", netip.MustParseAddr("1.2.3.4"), "example.com"},
		{"unset source", netip.Addr{}, "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.source)
			got, err := b.IPv4Header(tt.dst, TCPHeaderLen)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("IPv4Header() error = %v, want ErrInvalidAddress", err)
			}
			if got != nil {
				t.Errorf("IPv4Header() returned partial header % x", got)
			}
		})
	}
}

func TestBuilder_TCPSyn(t *testing.T) {
	b := NewBuilder(netip.MustParseAddr("1.2.3.4"))

	got, err := b.TCPSyn(zeroedIPHeader, 20, 80, 0)
	if err != nil {
		t.Fatalf("TCPSyn() unexpected error: %v", err)
	}

	// Same segment as zeroedSynAckSegment with only SYN set, so the
	// checksum is 16 above 3176.
	want := []byte{
		0x00, 0x14, 0x00, 0x50, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x50, 0x02, 0x20, 0x00, 0x0c, 0x78, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("TCPSyn() = % x, want % x", got, want)
	}
}

func TestBuilder_SYNMatchesGopacket(t *testing.T) {
	b := NewBuilder(netip.MustParseAddr("192.0.2.10"))
	dst := netip.MustParseAddr("198.51.100.7")

	pkt, err := b.SYN(dst, 40000, 443, 0xdeadbeef)
	if err != nil {
		t.Fatalf("SYN() unexpected error: %v", err)
	}
	if len(pkt) != SYNLen {
		t.Fatalf("SYN() length = %d, want %d", len(pkt), SYNLen)
	}

	p := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.Default)
	if el := p.ErrorLayer(); el != nil {
		t.Fatalf("gopacket decode error: %v", el.Error())
	}
	ip, _ := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	tcp, _ := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if ip == nil || tcp == nil {
		t.Fatal("gopacket did not decode IPv4 and TCP layers")
	}
	if !tcp.SYN || tcp.ACK || tcp.RST || tcp.FIN {
		t.Errorf("flags SYN=%v ACK=%v RST=%v FIN=%v, want SYN only", tcp.SYN, tcp.ACK, tcp.RST, tcp.FIN)
	}
	if tcp.Seq != 0xdeadbeef || tcp.SrcPort != 40000 || tcp.DstPort != 443 {
		t.Errorf("seq=%d sport=%d dport=%d, want %d 40000 443", tcp.Seq, tcp.SrcPort, tcp.DstPort, uint32(0xdeadbeef))
	}
	if len(tcp.Options) != 0 {
		t.Errorf("TCP options = %v, want none", tcp.Options)
	}

	// Let gopacket recompute both checksums and compare byte for byte.
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum() error: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, tcp); err != nil {
		t.Fatalf("SerializeLayers() error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), pkt) {
		t.Errorf("gopacket serialization = % x, want % x", buf.Bytes(), pkt)
	}
}

func TestBuilder_SYNRejectsIPv6(t *testing.T) {
	b := NewBuilder(netip.MustParseAddr("192.0.2.10"))
	if _, err := b.SYN(netip.MustParseAddr("2001:db8::1"), 1, 2, 3); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("SYN() error = %v, want ErrInvalidAddress", err)
	}
}
