package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tkjaer/synping/internal/shared"
)

const (
	// MinInterval is the shortest accepted reporting interval.
	MinInterval = 5 * time.Second
	// FinalPrefix is prepended to the report sent at shutdown.
	FinalPrefix = "PING IS OVER\n"
	// FinalTimeout bounds delivery of the final report.
	FinalTimeout = 10 * time.Second
)

var ErrIntervalTooSmall = errors.New("report interval must be at least 5s")

// Sink delivers a rendered report somewhere.
type Sink interface {
	Send(ctx context.Context, body string) error
}

// SummaryFunc returns the current per-destination statistics.
type SummaryFunc func() []shared.Summary

// Reporter periodically renders the current statistics to a Sink and sends a
// final report when the run is over.
type Reporter struct {
	sink      Sink
	interval  time.Duration
	summaries SummaryFunc
}

func NewReporter(sink Sink, interval time.Duration, summaries SummaryFunc) (*Reporter, error) {
	if interval < MinInterval {
		return nil, ErrIntervalTooSmall
	}
	return &Reporter{
		sink:      sink,
		interval:  interval,
		summaries: summaries,
	}, nil
}

// Run sends a report every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.send(ctx, Format(r.summaries()))
		}
	}
}

func (r *Reporter) send(ctx context.Context, body string) {
	slog.Debug("Sending report")
	if err := r.sink.Send(ctx, body); err != nil {
		slog.Warn("Failed to send report", "error", err)
	}
}

// The methods below let the Reporter be registered as an output so the
// final summary is delivered through the sink as well.

func (r *Reporter) ProbeSent(shared.Observation) {}

func (r *Reporter) ProbeAnswered(shared.Observation) {}

func (r *Reporter) Summary(summaries []shared.Summary) {
	// The run is over, the caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), FinalTimeout)
	defer cancel()
	r.send(ctx, FinalPrefix+Format(summaries))
}

func (r *Reporter) Close() error {
	return nil
}
