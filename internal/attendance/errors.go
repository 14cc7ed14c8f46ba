package attendance

import "errors"

type Kind int

const (
    KindNotFound Kind = iota + 1
    KindForbidden
    KindConflict
    KindInvalid
    KindUnexpected
)

// Error carries the failure taxonomy for teacher-facing session operations.
// Message is safe to display. Conflict errors also carry the already-active
// session so the caller can resume it instead of opening a duplicate.
type Error struct {
    Kind      Kind
    Message   string
    SessionID uint
    OTP       string
}

func (e *Error) Error() string { return e.Message }

func notFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Message: msg} }
func invalid(msg string) *Error    { return &Error{Kind: KindInvalid, Message: msg} }
func unexpected(msg string) *Error { return &Error{Kind: KindUnexpected, Message: msg} }

// AsError unwraps err into the taxonomy; unknown errors map to KindUnexpected.
func AsError(err error) *Error {
    var e *Error
    if errors.As(err, &e) {
        return e
    }
    return unexpected("internal error")
}
