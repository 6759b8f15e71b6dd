package rawsock

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

const (
	snapLen            = 65536
	captureReadTimeout = 100 * time.Millisecond
)

// captureConn sends through a raw socket and receives through libpcap.
// Some kernels (Darwin, the BSDs) never hand inbound TCP segments to raw
// sockets, so the replies have to be captured on the interface instead.
type captureConn struct {
	sender  Conn
	handle  *pcap.Handle
	packets chan gopacket.Packet

	closeOnce sync.Once
}

// OpenCapture opens a raw socket for sending and a pcap handle on iface
// that only passes SYN/ACK segments addressed to local.
func OpenCapture(iface string, local netip.Addr) (Conn, error) {
	sender, err := Open()
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(iface, snapLen, false, captureReadTimeout)
	if err != nil {
		sender.Close()
		return nil, &SocketError{Op: "pcap open " + iface, Err: err}
	}
	if err := handle.SetBPFFilter(CaptureFilter(local)); err != nil {
		handle.Close()
		sender.Close()
		return nil, &SocketError{Op: "pcap filter", Err: err}
	}
	slog.Debug("Opened pcap handle", "interface", iface, "filter", CaptureFilter(local))

	return &captureConn{
		sender:  sender,
		handle:  handle,
		packets: gopacket.NewPacketSource(handle, handle.LinkType()).Packets(),
	}, nil
}

// CaptureFilter returns the BPF expression matching SYN/ACK replies sent to
// local.
func CaptureFilter(local netip.Addr) string {
	return fmt.Sprintf(
		"ip and tcp and dst host %v and tcp[tcpflags] & (tcp-syn|tcp-ack) == (tcp-syn|tcp-ack)",
		local)
}

func (c *captureConn) WritePacket(pkt []byte) error {
	return c.sender.WritePacket(pkt)
}

func (c *captureConn) ReadPacket(buf []byte, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-expired:
			return 0, ErrTimeout
		case packet, ok := <-c.packets:
			if !ok {
				return 0, &SocketError{Op: "pcap read", Err: io.EOF}
			}
			if n, ok := copyIPv4(buf, packet); ok {
				return n, nil
			}
		}
	}
}

// copyIPv4 copies the IPv4 datagram carried by packet into buf, dropping
// the link layer.
func copyIPv4(buf []byte, packet gopacket.Packet) (int, bool) {
	ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return 0, false
	}
	n := copy(buf, ip.Contents)
	n += copy(buf[n:], ip.Payload)
	return n, true
}

func (c *captureConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.handle.Close()
		err = c.sender.Close()
	})
	return err
}
