package suggest

import (
	"errors"
	"fmt"
)

// Kind classifies every failure a caller can observe.
type Kind int

const (
	// KindInternal covers index or store faults, timeouts and anything unexpected.
	KindInternal Kind = iota
	// KindInvalidQuery is a query that is too short, too long or has disallowed characters.
	KindInvalidQuery
	// KindInvalidFilter is an unknown language tag.
	KindInvalidFilter
	// KindRateLimited is a request rejected by admission control.
	KindRateLimited
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrInternal      = errors.New("internal error")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrRateLimited   = errors.New("rate limited")
)

// Code is the wire name of the kind.
func (k Kind) Code() string {
	switch k {
	case KindInvalidQuery:
		return "INVALID_QUERY"
	case KindInvalidFilter:
		return "INVALID_FILTER"
	case KindRateLimited:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}

func (k Kind) String() string {
	return k.Code()
}

// ClientError reports whether the kind is caused by the request input.
// Client errors are deterministic and never retried.
func (k Kind) ClientError() bool {
	return k == KindInvalidQuery || k == KindInvalidFilter
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidQuery:
		return ErrInvalidQuery
	case KindInvalidFilter:
		return ErrInvalidFilter
	case KindRateLimited:
		return ErrRateLimited
	default:
		return ErrInternal
	}
}

// Error is the error type returned by the engine.
// Msg is safe to show to clients for client errors; Err is diagnostic only.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func invalidQuery(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidQuery, Msg: fmt.Sprintf(format, args...)}
}

func invalidFilter(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFilter, Msg: fmt.Sprintf(format, args...)}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// RateLimited builds the error admission control returns.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Msg: msg}
}

// KindOf classifies any error; errors not produced by this package are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the part of err that may be shown to a client.
// Internal and rate-limit details never leave the server.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind.ClientError() {
		return e.Msg
	}
	return ""
}
