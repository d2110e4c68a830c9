package exam

// Domain error types returned by coordinator operations. Infrastructure
// failures (persistence, notification sends) are wrapped separately and
// never leak pgx/redis errors to the transport.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// InvalidStateError marks an operation that is not legal for the current
// participant or session status, e.g. resuming a participant that is not
// paused.
type InvalidStateError struct{ Message string }

func (e *InvalidStateError) Error() string { return e.Message }
