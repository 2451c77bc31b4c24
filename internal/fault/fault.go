// Package fault defines the error taxonomy shared by every external-call
// boundary in counsel. Failures are classified into a small set of kinds so
// call sites and the API layer can map them to user-visible behavior without
// string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the boundary where it occurred.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no classification.
	KindUnknown Kind = iota

	// KindConfiguration covers missing or mismatched credentials and
	// dimensionality/metric mismatches against an existing collection.
	KindConfiguration

	// KindConnectivity covers transport failures reaching the vector store
	// or an LLM endpoint.
	KindConnectivity

	// KindDocument covers unreadable or unsupported uploads.
	KindDocument

	// KindEmbedding covers embedding-service failures.
	KindEmbedding

	// KindModel covers LLM call failures.
	KindModel
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnectivity:
		return "connectivity"
	case KindDocument:
		return "document"
	case KindEmbedding:
		return "embedding"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string // operation name, e.g. "qdrant.search"
	Err  error  // underlying cause, may be nil for leaf errors
	Msg  string // message when there is no underlying cause
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a leaf error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
