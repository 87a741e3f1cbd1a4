package deletion

import "errors"

// Kind classifies a deletion failure.
type Kind string

const (
	KindFileNotFound     Kind = "file_not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindUserDenied       Kind = "user_denied"
	KindNoHostContext    Kind = "no_host_context"
	KindDeletionFailed   Kind = "deletion_failed"
	KindHostIndexError   Kind = "host_index_error"
	KindTimeout          Kind = "timeout"
	KindBusy             Kind = "busy"
	KindCanceled         Kind = "canceled"
	// KindPermissionNeeded means the host requires the all files access
	// grant before any deletion is attempted.
	KindPermissionNeeded Kind = "permission_needed"
)

// Error is the only error type the coordinator surfaces to callers.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so the sentinels below work
// with errors.Is regardless of path or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrFileNotFound     = &Error{Kind: KindFileNotFound}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrUserDenied       = &Error{Kind: KindUserDenied}
	ErrNoHostContext    = &Error{Kind: KindNoHostContext}
	ErrDeletionFailed   = &Error{Kind: KindDeletionFailed}
	ErrHostIndexError   = &Error{Kind: KindHostIndexError}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrCanceled         = &Error{Kind: KindCanceled}
	ErrPermissionNeeded = &Error{Kind: KindPermissionNeeded}
)

// KindOf extracts the Kind from err, or "" when err is nil or foreign. A
// typed nil *Error also yields "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Err: cause}
}
