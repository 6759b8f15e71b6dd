package stats

import (
	"sync"
	"time"

	"github.com/tkjaer/synping/internal/shared"
)

type storeEntry struct {
	host  string
	stats *Statistics
}

// Store holds the Statistics of every destination in the order they were
// added.
type Store struct {
	mu      sync.RWMutex
	entries map[shared.DestinationKey]*storeEntry
	order   []shared.DestinationKey
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[shared.DestinationKey]*storeEntry),
	}
}

// Add returns the Statistics for key, creating them on first use.
func (s *Store) Add(key shared.DestinationKey, host string) *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.stats
	}
	e := &storeEntry{host: host, stats: NewStatistics()}
	s.entries[key] = e
	s.order = append(s.order, key)
	return e.stats
}

// Summaries returns a snapshot of every destination in insertion order.
func (s *Store) Summaries() []shared.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]shared.Summary, 0, len(s.order))
	for _, key := range s.order {
		e := s.entries[key]
		summaries = append(summaries, e.stats.Summary(key, e.host))
	}
	return summaries
}

// Summary returns a snapshot of the statistics for key.
func (s *Statistics) Summary(key shared.DestinationKey, host string) shared.Summary {
	sum := shared.Summary{
		Key:  key,
		Host: host,
	}

	rtts := s.RoundTrips()
	s.mu.Lock()
	sum.Sent = len(s.sent)
	s.mu.Unlock()
	sum.Answered = len(rtts)
	sum.LossPct = calculateLossPct(sum.Sent, sum.Answered)

	if len(rtts) > 0 {
		sum.Min, sum.Max = rtts[0], rtts[0]
		var total int64
		for _, rtt := range rtts {
			sum.Min = min(sum.Min, rtt)
			sum.Max = max(sum.Max, rtt)
			total += int64(rtt)
		}
		sum.Avg = time.Duration(total / int64(len(rtts)))
	}
	return sum
}
