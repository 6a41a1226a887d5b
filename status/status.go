// Package status holds the result codes shared by every gomemd operation.
//
// Operations return Go errors. Every error produced by this module carries one
// of the Status codes below, so callers that need a flat result code (an FFI
// shim, a CLI exit code) can recover it with Of.
package status

import (
	"errors"
	"fmt"
)

// Status is the result code of a single operation.
// Success is the only non-error value. Any other value fails the operation
// but leaves the interface handle usable.
type Status uint32

const (
	Success Status = iota
	GeneralFailure
	InitFailed
	NotInitialized
	ConnectionFailed
	Unsupported
	InvalidProcess
	TranslationFailed
	PartialTransfer
	EnumerationFailed
	InvalidHandle
)

var statusNames = map[Status]string{
	Success:           "SUCCESS",
	GeneralFailure:    "GENERAL_FAILURE",
	InitFailed:        "INIT_FAILED",
	NotInitialized:    "NOT_INITIALIZED",
	ConnectionFailed:  "CONNECTION_FAILED",
	Unsupported:       "UNSUPPORTED",
	InvalidProcess:    "INVALID_PROCESS",
	TranslationFailed: "TRANSLATION_FAILED",
	PartialTransfer:   "PARTIAL_TRANSFER",
	EnumerationFailed: "ENUMERATION_FAILED",
	InvalidHandle:     "INVALID_HANDLE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", uint32(s))
}

var (
	ErrGeneralFailure    = errors.New("general failure")
	ErrInitFailed        = errors.New("library initialization failed")
	ErrNotInitialized    = errors.New("library not initialized")
	ErrConnectionFailed  = errors.New("driver connection failed")
	ErrUnsupported       = errors.New("operation not supported by driver")
	ErrInvalidProcess    = errors.New("invalid process")
	ErrTranslationFailed = errors.New("address translation failed")
	ErrPartialTransfer   = errors.New("partial memory transfer")
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrInvalidHandle     = errors.New("invalid interface handle")
)

var sentinels = map[Status]error{
	GeneralFailure:    ErrGeneralFailure,
	InitFailed:        ErrInitFailed,
	NotInitialized:    ErrNotInitialized,
	ConnectionFailed:  ErrConnectionFailed,
	Unsupported:       ErrUnsupported,
	InvalidProcess:    ErrInvalidProcess,
	TranslationFailed: ErrTranslationFailed,
	PartialTransfer:   ErrPartialTransfer,
	EnumerationFailed: ErrEnumerationFailed,
	InvalidHandle:     ErrInvalidHandle,
}

// Sentinel returns the sentinel error for s, or nil for Success.
func (s Status) Sentinel() error {
	if s == Success {
		return nil
	}
	if err, ok := sentinels[s]; ok {
		return err
	}
	return ErrGeneralFailure
}

// Error is the error type returned by gomemd operations.
type Error struct {
	Op     string
	Status Status
	Err    error
}

// New builds an *Error for op. A nil err is allowed.
func New(op string, s Status, err error) *Error {
	return &Error{Op: op, Status: s, Err: err}
}

// Newf is New with a formatted cause.
func Newf(op string, s Status, format string, args ...interface{}) *Error {
	return &Error{Op: op, Status: s, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Status.Sentinel().Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, status.ErrX) match any *Error carrying the status of ErrX.
func (e *Error) Is(target error) bool {
	return target == e.Status.Sentinel()
}

// Of reduces err to its Status. Nil is Success; errors not produced by this
// module are GeneralFailure.
func Of(err error) Status {
	if err == nil {
		return Success
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}

	for s, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return s
		}
	}

	return GeneralFailure
}
