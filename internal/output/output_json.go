package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/tkjaer/synping/internal/shared"
)

// EventSummary marks the per-destination records written at the end of a run
const EventSummary = "summary"

// summaryRecord is the JSON form of shared.Summary
type summaryRecord struct {
	Event       string  `json:"event"`
	Destination string  `json:"destination"`
	Host        string  `json:"host,omitempty"`
	Sent        int     `json:"sent"`
	Answered    int     `json:"answered"`
	LossPct     float64 `json:"loss_pct"`
	MinRTTMs    float64 `json:"min_rtt_ms,omitempty"`
	MaxRTTMs    float64 `json:"max_rtt_ms,omitempty"`
	AvgRTTMs    float64 `json:"avg_rtt_ms,omitempty"`
}

func newSummaryRecord(s shared.Summary) summaryRecord {
	r := summaryRecord{
		Event:       EventSummary,
		Destination: s.Key.String(),
		Host:        s.Host,
		Sent:        s.Sent,
		Answered:    s.Answered,
		LossPct:     s.LossPct,
	}
	if s.Answered > 0 {
		r.MinRTTMs = shared.Ms(s.Min)
		r.MaxRTTMs = shared.Ms(s.Max)
		r.AvgRTTMs = shared.Ms(s.Avg)
	}
	return r
}

// JSONOutput writes newline-delimited JSON to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		// Output to stdout
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (j *JSONOutput) encode(v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(v)
}

func (j *JSONOutput) ProbeSent(obs shared.Observation) {
	j.encode(obs)
}

func (j *JSONOutput) ProbeAnswered(obs shared.Observation) {
	j.encode(obs)
}

func (j *JSONOutput) Summary(summaries []shared.Summary) {
	for _, s := range summaries {
		j.encode(newSummaryRecord(s))
	}
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
