package shared

import (
	"net/netip"
	"time"
)

// DestinationKey identifies one probe target
type DestinationKey struct {
	Addr netip.Addr
	Port uint16
}

func (k DestinationKey) String() string {
	return netip.AddrPortFrom(k.Addr, k.Port).String()
}

// Destination is a resolved probe target with the source address used to
// reach it
type Destination struct {
	Key    DestinationKey
	Host   string     // Host as given on the command line (may be a hostname)
	Source netip.Addr // Source address written into the IPv4 header
}

const (
	EventSent     = "sent"
	EventAnswered = "answered"
)

// Observation is a single sent or answered probe
type Observation struct {
	Destination string    `json:"destination"`           // ip:port
	Host        string    `json:"host,omitempty"`        // Hostname if one was given
	Event       string    `json:"event"`                 // EventSent or EventAnswered
	Seq         uint32    `json:"seq"`                   // Sequence number of the probe
	SourcePort  uint16    `json:"source_port,omitempty"` // Random source port of the SYN
	SentTime    time.Time `json:"sent_time"`
	RecvTime    time.Time `json:"recv_time,omitzero"`
	RTTMs       float64   `json:"rtt_ms,omitempty"` // Round trip in milliseconds
}

// Summary is a snapshot of the statistics of one destination.
// Min, Max and Avg are only meaningful when Answered > 0.
type Summary struct {
	Key      DestinationKey
	Host     string
	Sent     int
	Answered int
	LossPct  float64
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
}

// Ms converts a duration to fractional milliseconds
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
