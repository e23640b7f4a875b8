package browser

import (
	"context"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the attempt level failures. They never escape a batch.
type ErrorKind string

const (
	KindSessionCreation   ErrorKind = "session_creation"
	KindNavigationTimeout ErrorKind = "navigation_timeout"
	KindNavigation        ErrorKind = "navigation"
	KindInteraction       ErrorKind = "interaction"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func SessionCreationError(err error) error {
	return &Error{Kind: KindSessionCreation, Err: err}
}

func InteractionError(err error) error {
	return &Error{Kind: KindInteraction, Err: err}
}

// NavigationError classifies a navigation failure, separating elapsed
// deadlines from every other cause.
func NavigationError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNavigationTimeout, Err: err}
	}
	return &Error{Kind: KindNavigation, Err: err}
}

// KindOf returns the kind carried by err. Unclassified errors are reported
// with the fallback kind.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return fallback
}
