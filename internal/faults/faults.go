// File: internal/faults/faults.go
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so the command boundary can decide how to surface it.
type Kind int

const (
	// KindConfig covers missing or invalid settings detected before any I/O.
	KindConfig Kind = iota + 1
	// KindTimeout covers poll loops and single waits that exceeded their deadline.
	KindTimeout
	// KindExternal covers failures of collaborators such as the generation service.
	KindExternal
	// KindMissing covers absent files (config, session, CSV, report).
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindTimeout:
		return "timeout"
	case KindExternal:
		return "external"
	case KindMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for every classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "session.load".
	Op  string
	Msg string
	// Remedy is the concrete operator action, usually a command line.
	Remedy string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Remedy != "" {
		b.WriteString(" (")
		b.WriteString(e.Remedy)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Config returns a configuration error.
func Config(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Timeout returns a timeout error with a remediation hint.
func Timeout(op, msg, remedy string) *Error {
	return &Error{Kind: KindTimeout, Op: op, Msg: msg, Remedy: remedy}
}

// External wraps a collaborator failure.
func External(op string, err error) *Error {
	return &Error{Kind: KindExternal, Op: op, Msg: "external dependency failed", Err: err}
}

// Missing returns a resource-missing error naming the resource and the command that creates it.
func Missing(op, resource, remedy string) *Error {
	return &Error{Kind: KindMissing, Op: op, Msg: resource + " not found", Remedy: remedy}
}

// Is reports whether any error in err's chain is a faults.Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}

// KindOf returns the kind of the outermost classified error, or zero.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// RemedyOf returns the first remediation found in err's chain.
func RemedyOf(err error) string {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Remedy != "" {
			return fe.Remedy
		}
		err = fe.Err
	}
	return ""
}
