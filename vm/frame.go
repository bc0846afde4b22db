package vm

import (
	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/value"
)

// frame is one activation record: the active descriptor (giving the
// opcode stream and constant pool), an optional closure value (for
// upvalue access), the base index into the isolate's value stack, a
// decoder tracking pc, and the absolute stack slot of the caller's
// callee register (spec §3.4's CallFrame). Return does not write to
// resultSlot: the returned value stays in acc, where the caller's
// code reads it.
type frame struct {
	descriptor *object.FunctionDescriptor
	closure    value.Value // none for the module root or a bare, capture-less call
	base       int
	dec        *bytecode.Decoder
	resultSlot int // -1 for the bottommost frame

	// ownsClosure is true when closure is a reference this frame alone
	// owns (a bound-method or constructor call rebinds the callee
	// register to `this`, so nothing else keeps the closure alive) and
	// must therefore be released when the frame is popped. Plain
	// direct calls borrow the still-live caller register instead.
	ownsClosure bool

	// hasCtorResult marks a frame running a class's init method as part
	// of a constructor call: on Return, its own return value is
	// discarded and acc is reset to ctorResult (the freshly constructed
	// instance) instead (spec §4.6.3's implicit instantiate-then-init
	// convention).
	hasCtorResult bool
	ctorResult    value.Value
}

func newFrame(descriptor *object.FunctionDescriptor, closure value.Value, base, resultSlot int) frame {
	return frame{
		descriptor: descriptor,
		closure:    closure,
		base:       base,
		dec:        bytecode.NewDecoder(descriptor.Ops()),
		resultSlot: resultSlot,
	}
}

// releaseWindow drops every value.Value this frame owns across its
// register window, cascading refcount releases into any contained
// objects (spec §7 "unwinds all frames ... dropping each frame's
// stack window").
func (vm *Isolate) releaseWindow(fr *frame) {
	end := fr.base + fr.descriptor.StackSpace()
	for i := fr.base; i < end && i < len(vm.stack); i++ {
		vm.Heap.Release(vm.stack[i])
		vm.stack[i] = value.None()
	}
}

func (vm *Isolate) currentFrame() *frame {
	return &vm.frames[len(vm.frames)-1]
}
