package probe

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tkjaer/synping/internal/packet"
	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/internal/stats"
)

const (
	minSourcePort = 1024
	maxSourcePort = 65535
)

// TransmitEvent asks the transmit routine to put one SYN on the wire.
// The outcome of the write is reported on Result.
type TransmitEvent struct {
	Packet      []byte
	Destination *shared.Destination
	Stats       *stats.Statistics
	Seq         uint32
	SourcePort  uint16
	Result      chan error
}

// randomSourcePort returns a port in [minSourcePort, maxSourcePort]
func randomSourcePort() uint16 {
	return uint16(minSourcePort + rand.IntN(maxSourcePort-minSourcePort+1))
}

// Probe is the send loop of a single destination
type Probe struct {
	dest         shared.Destination
	builder      *packet.Builder
	stats        *stats.Statistics
	transmitChan chan TransmitEvent
	sourcePort   func() uint16
}

// sleep waits for d or until ctx is cancelled, returning false on cancel
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run sends count SYNs (forever if count is 0) spaced by interval, then
// waits replyWait for late answers. Build and write errors end the loop.
func (p *Probe) Run(ctx context.Context, interval time.Duration, count uint, replyWait time.Duration) error {
	key := p.dest.Key
	result := make(chan error, 1)

	for n := uint(0); count == 0 || n < count; n++ {
		if ctx.Err() != nil {
			slog.Debug("Probe received stop signal", "destination", key)
			return nil
		}

		seq := uint32(n)
		srcPort := p.sourcePort()
		pkt, err := p.builder.SYN(key.Addr, srcPort, key.Port, seq)
		if err != nil {
			return fmt.Errorf("%v: failed to build SYN: %w", key, err)
		}

		select {
		case p.transmitChan <- TransmitEvent{
			Packet:      pkt,
			Destination: &p.dest,
			Stats:       p.stats,
			Seq:         seq,
			SourcePort:  srcPort,
			Result:      result,
		}:
		case <-ctx.Done():
			return nil
		}

		select {
		case err := <-result:
			if err != nil {
				return fmt.Errorf("%v: failed to send SYN: %w", key, err)
			}
		case <-ctx.Done():
			return nil
		}

		if !sleep(ctx, interval) {
			return nil
		}
	}

	slog.Debug("Probe finished sending, waiting for replies", "destination", key, "wait", replyWait)
	sleep(ctx, replyWait)
	return nil
}
