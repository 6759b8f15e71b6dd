package probe

import (
	"context"
	"log/slog"

	"github.com/tkjaer/synping/internal/shared"
)

// transmitRoutine serialises all writes to the shared socket. The send time
// is registered before the write so that a fast reply always finds it, and
// dropped again if the write fails.
func (pm *ProbeManager) transmitRoutine(ctx context.Context) {
	for {
		select {
		case event := <-pm.transmitChan:
			sent := pm.now()
			event.Stats.RegisterSend(event.Seq, sent)

			if err := pm.conn.WritePacket(event.Packet); err != nil {
				event.Stats.Unregister(event.Seq)
				slog.Error("Error sending packet", "destination", event.Destination.Key, "error", err)
				event.Result <- err
				continue
			}
			event.Result <- nil

			pm.outputChan <- outputMsg{
				event: shared.EventSent,
				obs: shared.Observation{
					Destination: event.Destination.Key.String(),
					Host:        hostLabel(event.Destination),
					Event:       shared.EventSent,
					Seq:         event.Seq,
					SourcePort:  event.SourcePort,
					SentTime:    sent,
				},
			}
		case <-ctx.Done():
			slog.Debug("Stopping transmit routine")
			return
		}
	}
}

// hostLabel returns the hostname of d, empty when it was given as an address
func hostLabel(d *shared.Destination) string {
	if d.Host == d.Key.Addr.String() {
		return ""
	}
	return d.Host
}
