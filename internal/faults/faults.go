package faults

import "errors"

// Error kinds. Every domain sentinel wraps exactly one of these so transport
// layers can map failures without knowing each package's errors.
//
// - Validation: caller-correctable input, never retried automatically.
// - NotFound: a referenced record does not exist (stale reference).
// - Infrastructure: storage unreachable or timed out; caller may retry.
// - Consistency: a compensating action failed; manual reconciliation required.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrInfrastructure = errors.New("infrastructure fault")
	ErrConsistency    = errors.New("consistency fault")
)

// Kind returns the error kind wrapped by err, or nil when err carries none.
// Consistency is checked first since a double fault usually also wraps the
// infrastructure error that caused it.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConsistency):
		return ErrConsistency
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInfrastructure):
		return ErrInfrastructure
	default:
		return nil
	}
}

// Infrastructure wraps a raw storage error so it reports as an infrastructure
// fault while still matching the original error with errors.Is.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &infraError{op: op, err: err}
}

type infraError struct {
	op  string
	err error
}

func (e *infraError) Error() string { return e.op + ": " + e.err.Error() }

func (e *infraError) Unwrap() []error { return []error{ErrInfrastructure, e.err} }
