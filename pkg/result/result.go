// Package result provides a two-case container for the outcome of a
// background operation.
package result

// Result holds either a success value or an error, never both.
// Immutable
type Result[S any, E error] struct {
	success S
	err     E
	failed  bool
}

// Success creates a successful Result. The zero value of S is a valid
// success.
func Success[S any, E error](s S) Result[S, E] {
	return Result[S, E]{success: s}
}

// Failure creates a failed Result. It panics if e is nil: a failure must
// carry its cause.
func Failure[S any, E error](e E) Result[S, E] {
	if any(e) == nil {
		panic("result: Failure called with a nil error")
	}
	return Result[S, E]{err: e, failed: true}
}

// IsError reports whether r holds an error.
func (r Result[S, E]) IsError() bool {
	return r.failed
}

// Success returns the success value; ok is false for a failed Result.
func (r Result[S, E]) Success() (s S, ok bool) {
	if r.failed {
		return s, false
	}
	return r.success, true
}

// Error returns the error; ok is false for a successful Result.
func (r Result[S, E]) Error() (e E, ok bool) {
	if !r.failed {
		return e, false
	}
	return r.err, true
}

// Get unpacks r into the usual value/error pair.
func (r Result[S, E]) Get() (S, error) {
	if r.failed {
		var zero S
		return zero, r.err
	}
	return r.success, nil
}
