package types

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input: a malformed label or a missing required field
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists is returned by raw provider Create calls
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned by raw provider Delete calls
	ErrNotFound = errors.New("not found")

	// ErrPropagationTimeout is returned when DNS never converged on the expected address
	ErrPropagationTimeout = errors.New("DNS propagation timed out")
)

// Validationf builds an error matching ErrValidation
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ProviderError is an opaque failure reported by an upstream system
type ProviderError struct {
	Provider string // "cloudflare", "certbot", "nginx", ...
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StepError annotates a define failure with the pipeline step that failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("failed to define subdomain at %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// OutcomeKind classifies the result of an idempotent remove
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNotFound
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Outcome is the explicit result of an undefine: removed, already absent, or failed
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// OutcomeOf classifies err; ErrNotFound counts as convergence, not failure
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeOK}
	case errors.Is(err, ErrNotFound):
		return Outcome{Kind: OutcomeNotFound}
	default:
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
}

// Failed reports whether the outcome left state behind
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeFailed
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailed {
		return fmt.Sprintf("failed(%v)", o.Err)
	}
	return o.Kind.String()
}
