package pgf

import (
	"errors"
	"syscall"

	"github.com/joshuapare/ngfkit/db"
)

// ExnType classifies the outcome of a boundary call.
type ExnType int

const (
	ExnNone ExnType = iota
	ExnSystem
	ExnFormat
)

func (t ExnType) String() string {
	switch t {
	case ExnNone:
		return "none"
	case ExnSystem:
		return "system"
	case ExnFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Exn is the flattened result of an entry point: nothing, an OS error code,
// or a message describing malformed data.
type Exn struct {
	Type ExnType
	Code int    // errno for ExnSystem
	Msg  string // description for ExnFormat
}

// ToExn flattens err for callers across a language boundary.
func ToExn(err error) Exn {
	switch db.KindOf(err) {
	case db.KindNone:
		return Exn{Type: ExnNone}
	case db.KindSystem:
		ex := Exn{Type: ExnSystem}
		var e *db.Error
		if errors.As(err, &e) && e.Code != 0 {
			ex.Code = int(e.Code)
		} else if errno := syscall.Errno(0); errors.As(err, &errno) {
			ex.Code = int(errno)
		}
		return ex
	default:
		return Exn{Type: ExnFormat, Msg: err.Error()}
	}
}
