// Package vm implements the dispatch loop: an accumulator-plus-
// register decode/execute cycle over the bytecode package's
// instruction stream, a call stack of frames sharing per-function
// constant pools and captures, and the VM-level error/traceback
// behavior of spec §7. Grounded on the teacher's vm/exec.go (a tight
// decode-switch loop) and vm/vm.go (the CPU/call-frame struct this
// Isolate generalizes from 32-bit words to tagged Values), with
// arithmetic/comparison/call semantics following spec §4.6 instead of
// the teacher's fixed 32-register stack machine.
package vm

import (
	"io"

	"go.uber.org/zap"

	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/value"
)

// Isolate is one independent VM instance: its own object heap, module
// and global namespaces, and I/O pair (spec §5 "one active VM per
// isolate ... the object heap is owned by the isolate and unshared").
type Isolate struct {
	Heap   *object.Heap
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger

	globals    map[string]value.Value
	moduleVars []value.Value

	stack  []value.Value
	frames []frame
	acc    value.Value
}

// NewIsolate constructs an Isolate writing to stdout/stderr, logging
// through logger (a nop logger if nil, matching the teacher's
// tolerance for an absent debug sink).
func NewIsolate(stdout, stderr io.Writer, logger *zap.Logger) *Isolate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Isolate{
		Heap:    object.NewHeap(),
		Stdout:  stdout,
		Stderr:  stderr,
		Logger:  logger,
		globals: map[string]value.Value{},
		acc:     value.None(),
	}
}

// SetGlobal binds name in the global namespace, retaining v (spec
// §3.5, §6 "set_global(name, value)").
func (vm *Isolate) SetGlobal(name string, v value.Value) {
	if old, ok := vm.globals[name]; ok {
		vm.Heap.Release(old)
	}
	vm.globals[name] = vm.Heap.Retain(v)
}

// GetGlobal reads name from the global namespace (spec §6
// "get_global(name) -> Value?").
func (vm *Isolate) GetGlobal(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// setAcc releases whatever acc currently owns and adopts v as the new
// owned value: every opcode that replaces acc funnels through here so
// the accumulator's ownership invariant (acc always owns a strong
// reference to the value it holds) stays in one place instead of
// being repeated at each call site.
func (vm *Isolate) setAcc(v value.Value) {
	vm.Heap.Release(vm.acc)
	vm.acc = v
}

// Reserve grows the value stack's capacity to at least n slots ahead
// of time (the CLI's --stack-size flag uses this so a long-running
// script doesn't pay for repeated grow-by-one reallocation).
func (vm *Isolate) Reserve(n int) {
	if cap(vm.stack) >= n {
		return
	}
	grown := make([]value.Value, len(vm.stack), n)
	copy(grown, vm.stack)
	vm.stack = grown
}

// ensureStack grows the value stack so index n-1 is addressable,
// zero-filling new slots with none (spec §3.4's CallFrame invariant
// `base + stack_space <= stack.len()`).
func (vm *Isolate) ensureStack(n int) {
	for len(vm.stack) < n {
		vm.stack = append(vm.stack, value.None())
	}
}
