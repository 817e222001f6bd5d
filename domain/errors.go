package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the photo synchronization
type ErrorKind uint8

const (
	UnknownError = ErrorKind(iota)
	NetworkError
	HTTPStatusError
	DecodeError
	APIError
	PersistenceError
)

var kindNames = map[ErrorKind]string{
	UnknownError:     "unknown",
	NetworkError:     "network",
	HTTPStatusError:  "httpstatus",
	DecodeError:      "decode",
	APIError:         "api",
	PersistenceError: "persistence",
}

func (k ErrorKind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified failure. Status is only set for HTTPStatusError.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String() + " error"
	if e.Kind == HTTPStatusError {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first domain.Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnknownError
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func NewNetworkError(op string, err error) error {
	return &Error{Kind: NetworkError, Op: op, Err: err}
}

func NewHTTPStatusError(op string, status int) error {
	return &Error{Kind: HTTPStatusError, Op: op, Status: status}
}

func NewDecodeError(op string, err error) error {
	return &Error{Kind: DecodeError, Op: op, Err: err}
}

func NewAPIError(op string, msg string) error {
	return &Error{Kind: APIError, Op: op, Err: errors.New(msg)}
}

func NewPersistenceError(op string, err error) error {
	return &Error{Kind: PersistenceError, Op: op, Err: err}
}
