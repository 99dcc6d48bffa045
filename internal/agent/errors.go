package agent

import "errors"

// ValidationError reports a malformed request. It is the caller's fault and
// is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	// ErrProvider wraps every failure of the conversation model call,
	// including timeouts and abandoned requests.
	ErrProvider = errors.New("provider error")

	// ErrSessionNotFound is returned by stores when a channel has no session,
	// or no longer has the session an exchange started on.
	ErrSessionNotFound = errors.New("session not found")
)

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
