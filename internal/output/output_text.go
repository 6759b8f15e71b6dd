package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tkjaer/synping/internal/report"
	"github.com/tkjaer/synping/internal/shared"
)

// TextOutput prints one line per answered probe and the final report
type TextOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextOutput writes to w, or stdout if w is nil
func NewTextOutput(w io.Writer) *TextOutput {
	if w == nil {
		w = os.Stdout
	}
	return &TextOutput{w: w}
}

func (t *TextOutput) ProbeSent(shared.Observation) {
	// Only answers are printed
}

func (t *TextOutput) ProbeAnswered(obs shared.Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "%s -> syn/ack seq=%d time=%.3f ms\n", obs.Destination, obs.Seq, obs.RTTMs)
}

func (t *TextOutput) Summary(summaries []shared.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(summaries) == 0 {
		return
	}
	fmt.Fprintln(t.w, report.Format(summaries))
}

func (t *TextOutput) Close() error {
	return nil
}
