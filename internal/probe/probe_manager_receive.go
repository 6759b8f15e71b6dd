package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkjaer/synping/internal/packet"
	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/internal/stats"
	"github.com/tkjaer/synping/pkg/rawsock"
)

// recvBufferSize fits any IPv4 datagram
const recvBufferSize = 65535

// recvProbes reads inbound datagrams until ctx is cancelled. Read timeouts
// only serve to notice the cancellation; any other read error is fatal.
func (pm *ProbeManager) recvProbes(ctx context.Context) error {
	buf := make([]byte, recvBufferSize)
	for {
		if ctx.Err() != nil {
			slog.Debug("Stopping receive routine")
			return nil
		}

		n, err := pm.conn.ReadPacket(buf, pm.pollInterval)
		if errors.Is(err, rawsock.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		pm.handleReply(buf[:n], pm.now())
	}
}

// handleReply correlates a SYN/ACK with the probe it answers. Anything that
// is not a SYN/ACK from a probed destination is ignored.
func (pm *ProbeManager) handleReply(buf []byte, recv time.Time) {
	reply, err := packet.DecodeSynAck(buf)
	if err != nil {
		return
	}

	key := shared.DestinationKey{Addr: reply.Source, Port: reply.SourcePort}
	p, ok := pm.probes[key]
	if !ok {
		return
	}

	seq := reply.Seq()
	rtt, err := p.stats.RegisterReceive(seq, recv)
	if err != nil {
		var unknown *stats.UnknownSequenceError
		switch {
		case errors.As(err, &unknown):
			slog.Debug("Discarding reply for unknown sequence", "destination", key, "seq", seq)
		case errors.Is(err, stats.ErrDuplicateReply):
			slog.Debug("Discarding duplicate reply", "destination", key, "seq", seq)
		default:
			slog.Debug("Discarding reply", "destination", key, "error", err)
		}
		return
	}

	pm.outputChan <- outputMsg{
		event: shared.EventAnswered,
		obs: shared.Observation{
			Destination: key.String(),
			Host:        hostLabel(&p.dest),
			Event:       shared.EventAnswered,
			Seq:         seq,
			SourcePort:  reply.DestPort,
			SentTime:    recv.Add(-rtt),
			RecvTime:    recv,
			RTTMs:       shared.Ms(rtt),
		},
	}
}
