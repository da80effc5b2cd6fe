// Package calcerr defines the failure taxonomy shared by the registry, the
// dispatcher and the isolated worker.
//
// Every failure has a Kind. Kinds are plain strings so that a failure raised
// inside a worker process can cross the process boundary and be rebuilt on the
// calling side with errors.Is still matching the original sentinel.
package calcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidOperand         Kind = "invalid_operand"
	KindUnknownOperation       Kind = "unknown_operation"
	KindDivisionByZero         Kind = "division_by_zero"
	KindArity                  Kind = "arity"
	KindPluginDirectoryMissing Kind = "plugin_directory_missing"
	KindWorkerExecution        Kind = "worker_execution"
)

var (
	ErrInvalidOperand         = errors.New("invalid operand")
	ErrUnknownOperation       = errors.New("unknown operation")
	ErrDivisionByZero         = errors.New("division by zero")
	ErrArity                  = errors.New("wrong number of operands")
	ErrPluginDirectoryMissing = errors.New("plugin directory missing")
	ErrWorkerExecution        = errors.New("worker execution failed")
)

// sentinels is ordered by precedence: KindOf reports the first match.
var sentinels = []struct {
	kind Kind
	err  error
}{
	{KindInvalidOperand, ErrInvalidOperand},
	{KindUnknownOperation, ErrUnknownOperation},
	{KindDivisionByZero, ErrDivisionByZero},
	{KindArity, ErrArity},
	{KindPluginDirectoryMissing, ErrPluginDirectoryMissing},
	{KindWorkerExecution, ErrWorkerExecution},
}

func sentinelFor(kind Kind) (error, bool) {
	for _, s := range sentinels {
		if s.kind == kind {
			return s.err, true
		}
	}
	return nil, false
}

// UnknownOperationError is returned when a name has no registered handler.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("Unknown operation: %s", e.Name)
}

// Is lets errors.Is(err, ErrUnknownOperation) match.
func (e *UnknownOperationError) Is(target error) bool {
	return target == ErrUnknownOperation
}

// UnknownOperation builds the error for the given name.
func UnknownOperation(name string) error {
	return &UnknownOperationError{Name: name}
}

// KindOf classifies err. Errors that match no sentinel are reported as
// KindWorkerExecution, the generic execution failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindWorkerExecution
}

// NameOf returns the operation name carried by an UnknownOperationError.
func NameOf(err error) string {
	var unknown *UnknownOperationError
	if errors.As(err, &unknown) {
		return unknown.Name
	}
	return ""
}

// FromFailure rebuilds an error from a serialized failure. The returned error
// matches the sentinel for kind; unrecognised kinds map to ErrWorkerExecution.
func FromFailure(kind Kind, message, name string) error {
	if kind == KindUnknownOperation && name != "" {
		return &UnknownOperationError{Name: name}
	}
	sentinel, ok := sentinelFor(kind)
	if !ok {
		sentinel = ErrWorkerExecution
	}
	if message == "" || message == sentinel.Error() {
		return sentinel
	}
	return &remoteError{sentinel: sentinel, message: message}
}

// remoteError keeps the worker's message while matching the local sentinel.
type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.sentinel }
