// Package joinerrors defines the closed error taxonomy shared by every
// Join Manager component, modeled on gcsemu's httpError: a cause plus
// an HTTP status code, unwrappable with errors.Is/errors.As.
package joinerrors

import "fmt"

// Kind is one of the closed set of error kinds the Join Manager raises.
// Each Kind maps to a response code (see HTTPStatus), which the HTTP
// layer (internal/joinhttp) uses;
// nothing outside this package should invent new kinds.
type Kind string

const (
	KindInvalidId                  Kind = "InvalidIdError"
	KindNotFound                   Kind = "NotFoundError"
	KindMissingFile                Kind = "MissingFileError"
	KindMissingOption              Kind = "MissingOptionError"
	KindInvalidOption              Kind = "InvalidOptionError"
	KindUnknownJoinKey             Kind = "UnknownJoinKeyError"
	KindCSVShape                   Kind = "CSVShapeError"
	KindEmptyKey                   Kind = "EmptyKeyError"
	KindDuplicateKey               Kind = "DuplicateKeyError"
	KindCollectionKeyNotInProvider Kind = "CollectionKeyNotInProviderError"
	KindContentType                Kind = "ContentTypeError"
	KindProviderKind               Kind = "ProviderKindError"
	KindIO                         Kind = "IOError"
	KindLockTimeout                Kind = "LockTimeoutError"
)

// httpStatus is the default HTTP status for each Kind; the OGC
// exception envelope (external to this repo) is expected to use this
// as a starting point.
var httpStatus = map[Kind]int{
	KindInvalidId:                  400,
	KindNotFound:                   404,
	KindMissingFile:                404,
	KindMissingOption:              400,
	KindInvalidOption:              400,
	KindUnknownJoinKey:             400,
	KindCSVShape:                   400,
	KindEmptyKey:                   400,
	KindDuplicateKey:               400,
	KindCollectionKeyNotInProvider: 400,
	KindContentType:                400,
	KindProviderKind:               400,
	KindIO:                         500,
	KindLockTimeout:                500,
}

// Error decorates a cause with one of the closed Kinds and the HTTP
// status code it maps to. It is the error type this module returns
// for the Kinds above; a few setup and argument errors (for example
// from joinstore.Open and Manager.PerformJoin) are plain errors.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code the OGC exception envelope should
// use for this Kind, or 500 if the Kind is somehow unrecognized.
func (e *Error) HTTPStatus() int {
	if code, ok := httpStatus[e.Kind]; ok {
		return code
	}
	return 500
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if je, ok := err.(*Error); ok {
			e = je
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
