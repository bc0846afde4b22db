// Package vmerr implements the error taxonomy from spec §7: a set of
// sentinel kinds that every layer of the core (object heap, emitter,
// dispatch loop) wraps its errors around, plus a concrete Error type
// that additionally carries a message and a source span so the host
// can format a traceback, the way the teacher's bare sentinel errors
// (vm.go's errSegmentationFault, errDivisionByZero, ...) could not.
package vmerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is(err, vmerr.ErrTypeError) etc. to
// classify an error regardless of which layer produced it.
var (
	ErrParseError  = errors.New("parse error")
	ErrEmitError   = errors.New("emit error")
	ErrTypeError   = errors.New("type error")
	ErrNameError   = errors.New("name error")
	ErrArityError  = errors.New("arity error")
	ErrFrozenError = errors.New("frozen error")
	ErrRuntimeError = errors.New("runtime error")
)

// Span is a (start, end) byte offset pair into the original source
// text, matching the parallel span array spec §6 attaches to every
// FunctionDescriptor for diagnostics.
type Span struct {
	Start uint32
	End   uint32
}

// Error is the concrete error value that crosses the host boundary:
// a message, the sentinel kind it wraps, and the span of the
// instruction whose execution raised it.
type Error struct {
	Kind    error
	Message string
	Span    Span
	// Frames carries one PC per unwound call frame, outermost first,
	// filled in as the VM unwinds (spec §7 "pairing each unwound
	// frame's PC with its descriptor's debug span array").
	Frames []uint32
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds an Error of the given kind at the given span.
func New(kind error, span Span, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Span: span}
}
