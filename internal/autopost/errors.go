package autopost

import (
	"errors"
	"fmt"
)

// Kind classifies a run failure.
type Kind int

const (
	// KindConfig covers bad input and missing configuration. Never retried.
	KindConfig Kind = iota + 1
	// KindNotFound covers missing news or credentials. The next run starts over.
	KindNotFound
	// KindGeneration means every generation attempt failed.
	KindGeneration
	// KindAuth means the publish token was rejected; the account must reconnect.
	KindAuth
	// KindPublish covers any other publish failure.
	KindPublish
	// KindStorage covers settings, token store and news fetch failures.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not found"
	case KindGeneration:
		return "generation"
	case KindAuth:
		return "auth"
	case KindPublish:
		return "publish"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrInvalidInterval = errors.New("interval out of bounds")
	ErrInvalidStyle    = errors.New("invalid style")
	ErrNotConfigured   = errors.New("autopost is not configured")
	ErrDisabled        = errors.New("autopost is disabled")
	ErrNoFreshNews     = errors.New("no fresh news")
	ErrNotConnected    = errors.New("linkedin account is not connected")
)

// Error is the single error type returned at the run boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
