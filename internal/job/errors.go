package job

import "errors"

var (
	// ErrNotFound is returned when a job record does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyProcessing is returned when admitting a job that another
	// worker currently holds in Processing.
	ErrAlreadyProcessing = errors.New("job already processing")

	// ErrInvalidMessage is returned for queue payloads that cannot be parsed
	// into a known message kind. Never retried.
	ErrInvalidMessage = errors.New("invalid queue message")

	// ErrMaxAttemptsExceeded is returned when a job has used up its retry
	// budget and has been marked Failed.
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrTerminalConflict is returned when a transition would overwrite a
	// terminal record with a different outcome. The existing state wins.
	ErrTerminalConflict = errors.New("job already terminal with different outcome")
)

// RetryableError wraps transient failures that should send the job back to
// Pending for another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a RetryableError.
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped as retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
