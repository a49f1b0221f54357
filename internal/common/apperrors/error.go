// Package apperrors provides the application error type used across datagate.
// It extends the standard error interface with error chaining, HTTP status
// codes, and message derivation, while remaining compatible with errors.Is
// and errors.As.
package apperrors

// Error is the interface implemented by all datagate application errors.
// Methods return Error so call sites can chain derivations.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a fresh error from the current one as template
	Msg(msg string) Error                  // derives an error with a new message, wrapping the original
	MsgErr(msg string, err ...error) Error // like Msg, additionally wrapping the given errors
	Err(err ...error) Error                // attaches additional wrapped errors
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	ErrorAll() string                      // message including all wrapped errors
	UnwrapAll() []error                    // all wrapped errors in order
}

// New creates a new root error with the given message and no status code.
func New(msg string) Error {
	return &appError{msg: msg}
}
