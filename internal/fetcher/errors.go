package fetcher

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these; *Error matches both its kind and
// its cause.
var (
	ErrTransient       = errors.New("transient platform error")
	ErrAuth            = errors.New("platform authentication failed")
	ErrParse           = errors.New("unexpected platform response")
	ErrUnresolved      = errors.New("identifier could not be resolved")
	ErrRateLimited     = errors.New("platform rate limit exceeded")
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrNotFound        = errors.New("not found on platform")
)

// Error is a classified fetcher failure.
type Error struct {
	Kind     error
	Platform string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Platform != "" {
		msg = e.Platform + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error.
func E(kind error, platform, op string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Op: op, Err: err}
}

// Parsef reports a malformed response.
func Parsef(platform, op, format string, args ...any) *Error {
	return E(ErrParse, platform, op, fmt.Errorf(format, args...))
}

// Authf reports rejected or expired credentials.
func Authf(platform, op, format string, args ...any) *Error {
	return E(ErrAuth, platform, op, fmt.Errorf(format, args...))
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// IsNotFound reports a missing remote object.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
