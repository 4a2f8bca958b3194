package shared

import "errors"

// Kind classifies domain errors so transports can map them without knowing
// every sentinel.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindBusiness
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusiness:
		return "business_rule"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified sentinel error. Compare with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

// NewError returns a sentinel of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() Kind { return e.kind }

// Kinded is implemented by errors that carry their own classification.
type Kinded interface {
	error
	ErrorKind() Kind
}

// KindOf walks the chain of err and returns the first classification found.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = NewError(KindNotFound, "not found")
	// ErrValidation marks malformed input.
	ErrValidation = NewError(KindValidation, "validation failed")
)
