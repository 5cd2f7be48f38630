// Package failure classifies pipeline errors into the kinds the CLI reports on.
package failure

import (
	"errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConversion
	KindTranscription
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConversion:
		return "conversion"
	case KindTranscription:
		return "transcription"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error attaches a Kind to an underlying error. The message is the
// underlying one so wrapping never changes what gets logged.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// wrap classifies err unless it already carries a kind, in which case it is
// returned untouched.
func wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &Error{Kind: k, Err: err}
}

func Configuration(err error) error {
	return wrap(KindConfiguration, err)
}

func Conversion(err error) error {
	return wrap(KindConversion, err)
}

func Transcription(err error) error {
	return wrap(KindTranscription, err)
}

func IO(err error) error {
	return wrap(KindIO, err)
}
