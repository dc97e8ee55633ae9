// Package cerr implements the error taxonomy used across the daemon: every
// deep code path returns a (class, sub, reason) tuple instead of the
// errno-as-return-channel idiom of the original C implementation.
package cerr

import (
	"errors"
	"fmt"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the closed set of error classes a confd component can raise.
type Class string

const (
	ClassFatal    Class = "fatal"
	ClassUnix     Class = "unix"
	ClassSyslog   Class = "syslog"
	ClassXML      Class = "xml"
	ClassSchema   Class = "schema"
	ClassDatabase Class = "database"
	ClassConfig   Class = "config"
	ClassProtocol Class = "protocol"
	ClassPlugin   Class = "plugin"
	ClassDemon    Class = "demon"
)

// Error is the concrete carrier for the class/sub/reason tuple. Sub is
// usually the errno of the underlying syscall when there is one; it is left
// at 0 otherwise.
type Error struct {
	Class  Class
	Sub    int
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given class with a formatted reason and no
// underlying cause.
func New(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given class around a causing error, recording
// its errno (if any) as Sub.
func Wrap(class Class, cause error, format string, args ...any) *Error {
	return &Error{
		Class:  class,
		Sub:    errno(cause),
		Reason: fmt.Sprintf(format, args...),
		cause:  cause,
	}
}

func Unix(cause error, format string, args ...any) *Error {
	return Wrap(ClassUnix, cause, format, args...)
}

func Protocol(format string, args ...any) *Error {
	return New(ClassProtocol, format, args...)
}

func Database(cause error, format string, args ...any) *Error {
	return Wrap(ClassDatabase, cause, format, args...)
}

func Schema(cause error, format string, args ...any) *Error {
	return Wrap(ClassSchema, cause, format, args...)
}

func Plugin(cause error, format string, args ...any) *Error {
	return Wrap(ClassPlugin, cause, format, args...)
}

func Config(format string, args ...any) *Error {
	return New(ClassConfig, format, args...)
}

// As extracts a *Error from any error, synthesizing a demon-class wrapper
// around errors that did not originate in this package so that callers can
// always rely on the Class, Sub and Reason fields being meaningful.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if ok := asError(err, &ce); ok {
		return ce
	}
	return &Error{Class: ClassDemon, Reason: err.Error(), cause: err}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GRPCStatus lets *Error participate in status.FromError, mirroring the
// corpus's habit of raising structured errors with google.golang.org/grpc's
// codes package even outside of an actual RPC transport.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(classToCode(e.Class), e.Reason)
}

func classToCode(c Class) codes.Code {
	switch c {
	case ClassProtocol:
		return codes.InvalidArgument
	case ClassDatabase:
		return codes.FailedPrecondition
	case ClassSchema:
		return codes.InvalidArgument
	case ClassPlugin:
		return codes.Aborted
	case ClassConfig, ClassFatal, ClassDemon:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// errno walks err's chain for a syscall.Errno — the actual type returned by
// the os/syscall packages for a failed system call — rather than looking for
// an Errno() int method no stdlib error implements.
func errno(err error) int {
	var se syscall.Errno
	if errors.As(err, &se) {
		return int(se)
	}
	return 0
}
