package remote

import (
	"errors"
	"fmt"
)

// Kind classifies why a remote command failed.
type Kind int

const (
	KindIO Kind = iota + 1
	KindConnection
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrConnection     = errors.New("connection error")
	ErrAuthentication = errors.New("authentication error")
	ErrIO             = errors.New("i/o error")
)

// Error is a classified remote execution failure.
type Error struct {
	Kind Kind
	Host string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var prefix string
	switch e.Kind {
	case KindConnection:
		prefix = "Connection Error"
	case KindAuthentication:
		prefix = "Authentication Error"
	default:
		prefix = "I/O Error"
	}
	if e.Host != "" {
		return fmt.Sprintf("%s: %s (host %s)", prefix, e.Msg, e.Host)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrAuthentication:
		return e.Kind == KindAuthentication
	case ErrIO:
		return e.Kind == KindIO
	}
	return false
}

func connectionError(msg string, err error) *Error {
	return &Error{Kind: KindConnection, Msg: msg, Err: err}
}

func authError(msg string, err error) *Error {
	return &Error{Kind: KindAuthentication, Msg: msg, Err: err}
}

func ioError(msg string, err error) *Error {
	return &Error{Kind: KindIO, Msg: msg, Err: err}
}

// KindOf returns the Kind of a remote error, or 0 when err is not one.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// withHost stamps the host onto a classified error.
func withHost(err error, host string) error {
	var re *Error
	if errors.As(err, &re) && re.Host == "" {
		re.Host = host
	}
	return err
}
