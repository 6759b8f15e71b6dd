package report

import (
	"fmt"
	"strings"

	"github.com/tkjaer/synping/internal/shared"
)

const separator = "=========="

// Format renders one section per destination, in the order given.
func Format(summaries []shared.Summary) string {
	sections := make([]string, 0, len(summaries))
	for _, s := range summaries {
		sections = append(sections, formatSummary(s))
	}
	return strings.Join(sections, "\n")
}

func formatSummary(s shared.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", separator, s.Key)
	if s.Sent == 0 {
		b.WriteString("No data")
		return b.String()
	}

	fmt.Fprintf(&b, "Sent: %d\n", s.Sent)
	fmt.Fprintf(&b, "Answered: %d\n", s.Answered)
	fmt.Fprintf(&b, "Loss: %.2f%%", s.LossPct)
	if s.Answered > 0 {
		fmt.Fprintf(&b, "\nMin RTT: %.3f ms", shared.Ms(s.Min))
		fmt.Fprintf(&b, "\nMax RTT: %.3f ms", shared.Ms(s.Max))
		fmt.Fprintf(&b, "\nAvg RTT: %.3f ms", shared.Ms(s.Avg))
	}
	return b.String()
}
