package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failure")
	ErrDistribution = errors.New("distribution failure")
	ErrProtocol     = errors.New("protocol error")
)

// Error carries a wire code alongside one of the sentinel kinds above.
type Error struct {
	Kind error
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func InvalidInput(code, msg string) error {
	return &Error{Kind: ErrInvalidInput, Code: code, Msg: msg}
}

func NotFound(code, msg string) error {
	return &Error{Kind: ErrNotFound, Code: code, Msg: msg}
}

func Protocol(code, msg string) error {
	return &Error{Kind: ErrProtocol, Code: code, Msg: msg}
}

// Persistence wraps a storage failure. A nil err stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrPersistence, Code: "persistence_error", Msg: op, Err: err}
}

// CodeOf maps an error to the code written to clients.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	default:
		return "internal_error"
	}
}

// MessageOf returns the client-facing text of an error.
// Persistence details are not exposed.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if errors.Is(de.Kind, ErrPersistence) {
			return "message could not be stored"
		}
		return de.Msg
	}
	return "internal error"
}
