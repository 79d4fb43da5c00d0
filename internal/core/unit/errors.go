package unit

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrFrozen            = errors.New("registration is closed")
	ErrAlreadyRegistered = errors.New("unit already registered")
	ErrNotRegistered     = errors.New("unit not registered")
	ErrUnresolved        = errors.New("unresolved dependency")
	ErrNoResource        = errors.New("resource not provided")
)

// Error describes a registry protocol or graph error. Location is the file:line
// of the call that caused it.
type Error struct {
	Op       string
	Unit     string
	Target   string
	Location string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("unit: ")
	b.WriteString(e.Op)
	b.WriteByte(' ')
	b.WriteString(e.Unit)
	if e.Target != "" {
		b.WriteString(" -> ")
		b.WriteString(e.Target)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " at %s", e.Location)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
