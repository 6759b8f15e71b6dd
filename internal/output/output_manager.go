package output

import (
	"errors"

	"github.com/tkjaer/synping/internal/shared"
)

// Output interface for different output types
type Output interface {
	ProbeSent(obs shared.Observation)
	ProbeAnswered(obs shared.Observation)
	Summary(summaries []shared.Summary)
	Close() error
}

// OutputManager fans every call out to all registered outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) Len() int {
	return len(om.outputs)
}

func (om *OutputManager) ProbeSent(obs shared.Observation) {
	for _, o := range om.outputs {
		o.ProbeSent(obs)
	}
}

func (om *OutputManager) ProbeAnswered(obs shared.Observation) {
	for _, o := range om.outputs {
		o.ProbeAnswered(obs)
	}
}

func (om *OutputManager) Summary(summaries []shared.Summary) {
	for _, o := range om.outputs {
		o.Summary(summaries)
	}
}

func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
