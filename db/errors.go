package db

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/joshuapare/ngfkit/internal/format"
)

// Kind classifies failures at the store boundary.
type Kind int

const (
	KindNone   Kind = iota // no error
	KindSystem             // the operating system refused; Code carries errno
	KindFormat             // the bytes or the caller's input are malformed; Msg describes it
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSystem:
		return "system"
	case KindFormat:
		return "format"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string        // operation that failed ("open", "grow", "sync", ...)
	Path string        // store path, empty for transient stores
	Code syscall.Errno // OS error code for KindSystem, 0 when unknown
	Msg  string        // description for KindFormat
	Err  error         // optional underlying cause
}

func (e *Error) Error() string {
	s := "ngf: " + e.Op
	if e.Path != "" {
		s += " " + e.Path
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors.
var (
	// ErrClosed indicates use of a store after Close.
	ErrClosed = errors.New("ngf: store closed")
	// ErrLockUpgrade indicates a writer scope requested while an enclosing
	// scope holds the same store for reading.
	ErrLockUpgrade = errors.New("ngf: cannot upgrade a reader scope to a writer scope")
	// ErrNullRoot indicates an attempt to publish the null reference as root.
	ErrNullRoot = errors.New("ngf: root must not be null")
	// ErrBadMagic indicates a file that is not a grammar store.
	ErrBadMagic = format.ErrSignatureMismatch
	// ErrChecksum indicates a header whose checksum does not match.
	ErrChecksum = format.ErrChecksum
)

// KindOf returns the kind of err: KindNone for nil, the kind recorded in an
// *Error anywhere in the chain, and KindFormat otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFormat
}

// systemError wraps an OS failure, extracting the errno when there is one.
func systemError(op, path string, err error) error {
	e := &Error{Kind: KindSystem, Op: op, Path: path, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Code = errno
	}
	return e
}

// formatError wraps a structural failure.
func formatError(op, path, msg string, err error) error {
	return &Error{Kind: KindFormat, Op: op, Path: path, Msg: msg, Err: err}
}

// FormatError builds a KindFormat error for collaborators that detect
// malformed input while building on top of a store.
func FormatError(op, msg string) error {
	return formatError(op, "", msg, nil)
}

// SystemError builds a KindSystem error for collaborators whose own I/O
// fails, such as reading a grammar source file.
func SystemError(op, path string, err error) error {
	return systemError(op, path, err)
}
