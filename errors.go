package subjectcrop

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can react without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidImage
	KindInvalidConfiguration
	KindModelUnavailable
	KindNoDetection
	KindLabelNotFound
	KindInferenceTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidImage:
		return "invalid image"
	case KindInvalidConfiguration:
		return "invalid configuration"
	case KindModelUnavailable:
		return "model unavailable"
	case KindNoDetection:
		return "no detection"
	case KindLabelNotFound:
		return "label not found"
	case KindInferenceTimeout:
		return "inference timeout"
	default:
		return "internal"
	}
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal when err was not
// produced by this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func errf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

func wrapErr(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...), Err: err}
}
