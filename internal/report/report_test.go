package report

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tkjaer/synping/internal/shared"
)

func key(addr string, port uint16) shared.DestinationKey {
	return shared.DestinationKey{Addr: netip.MustParseAddr(addr), Port: port}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name      string
		summaries []shared.Summary
		want      string
	}{
		{
			name:      "empty",
			summaries: nil,
			want:      "",
		},
		{
			name:      "no data",
			summaries: []shared.Summary{{Key: key("192.0.2.1", 80)}},
			want:      "==========\n192.0.2.1:80\nNo data",
		},
		{
			name: "nothing answered",
			summaries: []shared.Summary{{
				Key:     key("192.0.2.1", 80),
				Sent:    10,
				LossPct: 100,
			}},
			want: "==========\n192.0.2.1:80\nSent: 10\nAnswered: 0\nLoss: 100.00%",
		},
		{
			name: "answered",
			summaries: []shared.Summary{{
				Key:      key("192.0.2.1", 443),
				Sent:     3,
				Answered: 2,
				LossPct:  100.0 / 3,
				Min:      10 * time.Millisecond,
				Max:      30*time.Millisecond + 500*time.Microsecond,
				Avg:      20*time.Millisecond + 250*time.Microsecond,
			}},
			want: "==========\n192.0.2.1:443\nSent: 3\nAnswered: 2\nLoss: 33.33%\n" +
				"Min RTT: 10.000 ms\nMax RTT: 30.500 ms\nAvg RTT: 20.250 ms",
		},
		{
			name: "sections keep order",
			summaries: []shared.Summary{
				{Key: key("192.0.2.9", 22)},
				{Key: key("192.0.2.1", 22)},
			},
			want: "==========\n192.0.2.9:22\nNo data\n==========\n192.0.2.1:22\nNo data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.summaries); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeSink struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakeSink) Send(_ context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func TestNewReporter_IntervalTooSmall(t *testing.T) {
	_, err := NewReporter(&fakeSink{}, 4*time.Second, nil)
	if !errors.Is(err, ErrIntervalTooSmall) {
		t.Errorf("NewReporter() error = %v, want ErrIntervalTooSmall", err)
	}
	if _, err := NewReporter(&fakeSink{}, MinInterval, nil); err != nil {
		t.Errorf("NewReporter() at MinInterval unexpected error: %v", err)
	}
}

func TestReporter_Run(t *testing.T) {
	sink := &fakeSink{}
	summaries := []shared.Summary{{Key: key("192.0.2.1", 80)}}
	r := &Reporter{
		sink:      sink,
		interval:  10 * time.Millisecond,
		summaries: func() []shared.Summary { return summaries },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(sink.sent()) < 2 {
		select {
		case <-deadline:
			t.Fatal("Run() did not send periodic reports")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := sink.sent()[0]; got != Format(summaries) {
		t.Errorf("periodic report = %q, want %q", got, Format(summaries))
	}
}

func TestReporter_SummaryIsFinal(t *testing.T) {
	sink := &fakeSink{err: errors.New("smtp down")}
	r, err := NewReporter(sink, MinInterval, nil)
	if err != nil {
		t.Fatalf("NewReporter() unexpected error: %v", err)
	}

	summaries := []shared.Summary{{Key: key("192.0.2.1", 80)}}
	r.Summary(summaries)

	got := sink.sent()
	if len(got) != 1 {
		t.Fatalf("Summary() sent %d reports, want 1", len(got))
	}
	if !strings.HasPrefix(got[0], "PING IS OVER\n==========") {
		t.Errorf("final report = %q, want PING IS OVER prefix", got[0])
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}

func TestNewEmailSink(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		from    string
		to      []string
		wantErr bool
	}{
		{"valid", "smtp.gmail.com:465", "a@example.com", []string{"b@example.com"}, false},
		{"missing port", "smtp.gmail.com", "a@example.com", []string{"b@example.com"}, true},
		{"missing sender", "smtp.gmail.com:465", "", []string{"b@example.com"}, true},
		{"missing recipient", "smtp.gmail.com:465", "a@example.com", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmailSink(tt.server, tt.from, "", tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEmailSink() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailSink_Message(t *testing.T) {
	sink, err := NewEmailSink("smtp.example.com:465", "a@example.com", "", []string{"b@example.com", "c@example.com"})
	if err != nil {
		t.Fatalf("NewEmailSink() unexpected error: %v", err)
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := string(sink.message("line1\nline2", now))

	for _, want := range []string{
		"From: a@example.com\r\n",
		"To: b@example.com, c@example.com\r\n",
		"Subject: synping report\r\n",
		"Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n",
		"\r\n\r\nline1\r\nline2\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message() = %q, missing %q", msg, want)
		}
	}
}

func TestEmailSink_SendConnectError(t *testing.T) {
	// Port 1 on localhost is expected to refuse connections.
	sink, err := NewEmailSink("127.0.0.1:1", "a@example.com", "", []string{"b@example.com"})
	if err != nil {
		t.Fatalf("NewEmailSink() unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Send(ctx, "body"); err == nil {
		t.Error("Send() to closed port returned nil error")
	}
}
