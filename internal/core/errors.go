package core

// Error codes for domain errors.
const (
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotAuthorized    = "not_authorized"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeNotFound         = "not_found"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeRateLimited      = "rate_limited"
)

// Error wraps a code and human-readable message. Retryable marks
// transient failures the client may safely resubmit.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

func validationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

func notAuthorizedError(msg string) *Error {
	return &Error{Code: ErrCodeNotAuthorized, Message: msg}
}

func storeUnavailableError(msg string) *Error {
	return &Error{Code: ErrCodeStoreUnavailable, Message: msg, Retryable: true}
}

func notFoundError(msg string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: msg}
}
