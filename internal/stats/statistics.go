package stats

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrDuplicateReply is returned when a sequence has already been answered.
// The first round trip is kept.
var ErrDuplicateReply = errors.New("duplicate reply")

// UnknownSequenceError is returned for a reply to a probe that was never
// sent, typically cross-talk from another prober or a stale reply.
type UnknownSequenceError struct {
	Seq uint32
}

func (e *UnknownSequenceError) Error() string {
	return fmt.Sprintf("no probe sent with sequence %d", e.Seq)
}

// Statistics tracks send times and round trips of the probes sent to one
// destination. Records are never removed.
type Statistics struct {
	mu       sync.Mutex
	sent     map[uint32]time.Time
	answered map[uint32]time.Duration
}

// NewStatistics returns empty statistics.
func NewStatistics() *Statistics {
	return &Statistics{
		sent:     make(map[uint32]time.Time),
		answered: make(map[uint32]time.Duration),
	}
}

// RegisterSend records the send time of seq, overwriting any earlier record
// for the same sequence.
func (s *Statistics) RegisterSend(seq uint32, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[seq] = t
}

// Unregister drops the records of seq, for a probe that never went out.
func (s *Statistics) Unregister(seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sent, seq)
	delete(s.answered, seq)
}

// RegisterReceive records a reply for seq received at t and returns the
// round trip.
func (s *Statistics) RegisterReceive(seq uint32, t time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent, ok := s.sent[seq]
	if !ok {
		return 0, &UnknownSequenceError{Seq: seq}
	}
	if rtt, ok := s.answered[seq]; ok {
		return rtt, fmt.Errorf("%w for sequence %d", ErrDuplicateReply, seq)
	}
	rtt := t.Sub(sent)
	s.answered[seq] = rtt
	return rtt, nil
}

// RoundTrip returns the round trip of seq if it has been answered.
func (s *Statistics) RoundTrip(seq uint32) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rtt, ok := s.answered[seq]
	return rtt, ok
}

// Sent returns the number of probes sent.
func (s *Statistics) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// Answered returns the number of probes answered.
func (s *Statistics) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answered)
}

// RoundTrips returns the measured round trips ordered by sequence.
func (s *Statistics) RoundTrips() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]uint32, 0, len(s.answered))
	for seq := range s.answered {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)

	rtts := make([]time.Duration, len(seqs))
	for i, seq := range seqs {
		rtts[i] = s.answered[seq]
	}
	return rtts
}

// Min returns the smallest round trip, false if nothing was answered.
func (s *Statistics) Min() (time.Duration, bool) {
	rtts := s.RoundTrips()
	if len(rtts) == 0 {
		return 0, false
	}
	return slices.Min(rtts), true
}

// Max returns the largest round trip, false if nothing was answered.
func (s *Statistics) Max() (time.Duration, bool) {
	rtts := s.RoundTrips()
	if len(rtts) == 0 {
		return 0, false
	}
	return slices.Max(rtts), true
}

// Avg returns the mean round trip, false if nothing was answered.
func (s *Statistics) Avg() (time.Duration, bool) {
	rtts := s.RoundTrips()
	if len(rtts) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, rtt := range rtts {
		sum += rtt
	}
	return sum / time.Duration(len(rtts)), true
}

// LossPct returns the percentage of sent probes that were not answered, 0
// when nothing has been sent.
func (s *Statistics) LossPct() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return calculateLossPct(len(s.sent), len(s.answered))
}

func calculateLossPct(sent, answered int) float64 {
	if sent == 0 {
		return 0
	}
	return (1 - float64(answered)/float64(sent)) * 100
}
