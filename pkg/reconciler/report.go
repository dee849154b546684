package reconciler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/cuemby/burrow/pkg/types"
)

// StepOutcome is the result of one undefine sub-step
type StepOutcome struct {
	Step    string        `json:"step"`
	Outcome types.Outcome `json:"-"`
	Result  string        `json:"result"`
}

// Report summarizes an undefine. Undefine converges toward absence, so a
// report with warnings is still a completed call.
type Report struct {
	Label      string        `json:"label"`
	FullDomain string        `json:"full_domain"`
	Steps      []StepOutcome `json:"steps"`

	warnings *multierror.Error
}

func newReport(label, fullDomain string) *Report {
	return &Report{Label: label, FullDomain: fullDomain}
}

func (r *Report) add(step string, outcome types.Outcome) {
	so := StepOutcome{Step: step, Outcome: outcome, Result: outcome.String()}
	r.Steps = append(r.Steps, so)
	if outcome.Failed() {
		r.warnings = multierror.Append(r.warnings, fmt.Errorf("%s: %w", step, outcome.Err))
	}
}

// Err returns all sub-step failures as one error, or nil
func (r *Report) Err() error {
	return r.warnings.ErrorOrNil()
}

// Warnings lists the individual sub-step failures
func (r *Report) Warnings() []error {
	if r.warnings == nil {
		return nil
	}
	return r.warnings.Errors
}

// Outcome returns the outcome recorded for step
func (r *Report) Outcome(step string) (types.Outcome, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Outcome, true
		}
	}
	return types.Outcome{}, false
}
