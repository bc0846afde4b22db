package object

import (
	"fmt"

	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/vmerr"
)

// Params describes a callable's parameter spec: how many positional
// arguments are required/allowed, and whether the first argument is
// an implicit `self` (spec §4.6.3 "Validate arg_count against the
// descriptor's parameter spec (min/max, has_self)"). When HasSelf is
// set, MinArgs and MaxArgs count the implicit self as well.
type Params struct {
	Names   []string
	MinArgs int
	MaxArgs int
	HasSelf bool
}

// Check validates argc against the parameter spec, returning an
// ArityError if it does not fit.
func (p Params) Check(argc int) error {
	if argc < p.MinArgs || argc > p.MaxArgs {
		if p.MinArgs == p.MaxArgs {
			return fmt.Errorf("%w: expected %d argument(s), got %d", vmerr.ErrArityError, p.MinArgs, argc)
		}
		return fmt.Errorf("%w: expected between %d and %d argument(s), got %d", vmerr.ErrArityError, p.MinArgs, p.MaxArgs, argc)
	}
	return nil
}

// FunctionDescriptor is the immutable, compile-time artifact the
// emitter produces for a module's entry point (conventionally named
// `__main__`) and for every nested function or method body (spec
// §4.5, §3.3). It is built once per compilation and is safe to share
// across any number of live closures.
type FunctionDescriptor struct {
	baseObject
	name       string
	params     Params
	stackSpace int
	ops        []byte
	pool       *bytecode.Pool
	spans      map[int]vmerr.Span
	source     string
}

// NewFunctionDescriptor constructs a descriptor from the emitter's
// finished output. spans maps an instruction's start byte offset to
// its source span; it is sparse since most offsets are mid-operand,
// not instruction starts.
func NewFunctionDescriptor(name string, params Params, stackSpace int, ops []byte, pool *bytecode.Pool, spans map[int]vmerr.Span, source string) *FunctionDescriptor {
	return &FunctionDescriptor{
		name:       name,
		params:     params,
		stackSpace: stackSpace,
		ops:        ops,
		pool:       pool,
		spans:      spans,
		source:     source,
	}
}

func (f *FunctionDescriptor) TypeID() TypeID   { return TypeFunctionDescriptor }
func (f *FunctionDescriptor) TypeName() string { return "function" }
func (f *FunctionDescriptor) IsFrozen() bool   { return true }
func (f *FunctionDescriptor) Display(*Heap) string {
	return fmt.Sprintf("<function %s>", f.name)
}
func (f *FunctionDescriptor) Debug(h *Heap) string { return f.Display(h) }

// Name returns the function's declared name.
func (f *FunctionDescriptor) Name() string { return f.name }

// Params returns the parameter spec.
func (f *FunctionDescriptor) Params() Params { return f.params }

// StackSpace returns the number of value-stack slots a frame for this
// descriptor requires (spec §3.4's CallFrame invariant).
func (f *FunctionDescriptor) StackSpace() int { return f.stackSpace }

// Ops returns the opcode stream.
func (f *FunctionDescriptor) Ops() []byte { return f.ops }

// Pool returns the constant pool.
func (f *FunctionDescriptor) Pool() *bytecode.Pool { return f.pool }

// SpanAt returns the debug source span recorded for the statement
// whose emission covers pc: spans are recorded once per statement
// (at its first instruction's offset), so this returns the nearest
// recorded offset at or before pc rather than requiring an exact
// match, letting every instruction within a statement's run resolve
// to that statement's span.
func (f *FunctionDescriptor) SpanAt(pc int) vmerr.Span {
	var best vmerr.Span
	bestOffset := -1
	for off, sp := range f.spans {
		if off <= pc && off > bestOffset {
			bestOffset = off
			best = sp
		}
	}
	return best
}

// Source returns the debug source name (e.g. a file path or
// "<repl>"), empty if none was recorded.
func (f *FunctionDescriptor) Source() string { return f.source }
