package dispatch

import (
	"context"
	"errors"
)

var (
	// ErrInvalidHandler is returned when registering a nil or unnamed handler.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrDuplicateHandler is returned when a handler name is already registered.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrTimeout is reported when Process exceeds the dispatch timeout.
	ErrTimeout = errors.New("handler timed out")

	// ErrPanic is reported when Process panics.
	ErrPanic = errors.New("handler panicked")

	// ErrBadInput marks Process errors caused by the query itself. They are
	// reported like any failure but never trip the circuit breaker.
	ErrBadInput = errors.New("bad input")
)

// InputError wraps err so that it also matches ErrBadInput. The message
// is left unchanged.
func InputError(err error) error {
	if err == nil {
		return nil
	}
	return inputError{err: err}
}

type inputError struct{ err error }

func (e inputError) Error() string   { return e.err.Error() }
func (e inputError) Unwrap() []error { return []error{e.err, ErrBadInput} }

// Handler is a self-contained unit that answers one kind of query.
//
// CanHandle, ScoringBonus and ConfidenceBonus must be deterministic and free
// of side effects: they run for every candidate on every dispatch. Process
// does the actual work and must not cache or time itself; the dispatcher's
// execution wrapper does both.
type Handler interface {
	// Name is the unique handler identity.
	Name() string

	// Specialization is a human-readable label of the handler's domain.
	Specialization() string

	// CanHandle reports whether the handler is able to answer query.
	CanHandle(query string) bool

	// Process answers query.
	Process(ctx context.Context, query string) (string, error)

	// ScoringBonus is added to the candidate score when query strongly
	// matches the handler's domain.
	ScoringBonus(query string) float64

	// ConfidenceBonus is added to the response confidence.
	ConfidenceBonus(query, response string) float64
}

// HealthChecker is implemented by handlers that can report their own health.
// A failing check marks the handler's status entry as degraded.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Definition builds a Handler from plain functions. Score and Confidence
// may be nil, in which case they contribute nothing.
type Definition struct {
	ID         string
	Specialty  string
	Match      func(query string) bool
	Run        func(ctx context.Context, query string) (string, error)
	Score      func(query string) float64
	Confidence func(query, response string) float64
}

var _ Handler = (*Definition)(nil)

func (d *Definition) Name() string           { return d.ID }
func (d *Definition) Specialization() string { return d.Specialty }

func (d *Definition) CanHandle(query string) bool {
	if d.Match == nil {
		return false
	}
	return d.Match(query)
}

func (d *Definition) Process(ctx context.Context, query string) (string, error) {
	if d.Run == nil {
		return "", errors.New("handler has no run function")
	}
	return d.Run(ctx, query)
}

func (d *Definition) ScoringBonus(query string) float64 {
	if d.Score == nil {
		return 0
	}
	return d.Score(query)
}

func (d *Definition) ConfidenceBonus(query, response string) float64 {
	if d.Confidence == nil {
		return 0
	}
	return d.Confidence(query, response)
}
