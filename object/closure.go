package object

import (
	"fmt"

	"github.com/mulang-project/mulang/value"
)

// Closure pairs a FunctionDescriptor with a flat array of captured
// Values (spec §3.3). Multiple closures may share one descriptor.
type Closure struct {
	baseObject
	fn       value.Value // object handle to a *FunctionDescriptor
	captures []value.Value
}

// NewClosure constructs a closure over fn (retained by the caller
// already) with the given captures (each retained by the caller
// before this call).
func NewClosure(fn value.Value, captures []value.Value) *Closure {
	return &Closure{fn: fn, captures: captures}
}

func (c *Closure) TypeID() TypeID   { return TypeClosure }
func (c *Closure) TypeName() string { return "closure" }
func (c *Closure) IsFrozen() bool   { return true }

func (c *Closure) Display(h *Heap) string {
	if fn, ok := h.From(c.fn); ok {
		if fd, ok := fn.(*FunctionDescriptor); ok {
			return fmt.Sprintf("<closure %s>", fd.Name())
		}
	}
	return "<closure>"
}
func (c *Closure) Debug(h *Heap) string { return c.Display(h) }

// Descriptor returns the underlying FunctionDescriptor Value.
func (c *Closure) Descriptor() value.Value { return c.fn }

// Capture returns the value captured at idx.
func (c *Closure) Capture(idx int) (value.Value, bool) {
	if idx < 0 || idx >= len(c.captures) {
		return value.Value{}, false
	}
	return c.captures[idx], true
}

// AppendCapture adds one more captured value, in declaration order,
// to a closure just built by MakeFn (used by the CaptureReg/CaptureSlot
// opcodes that immediately follow it in the emitted stream).
func (c *Closure) AppendCapture(v value.Value) {
	c.captures = append(c.captures, v)
}

// SetCapture overwrites the value captured at idx (used by
// StoreUpvalue).
func (c *Closure) SetCapture(h *Heap, idx int, v value.Value) bool {
	if idx < 0 || idx >= len(c.captures) {
		return false
	}
	h.Release(c.captures[idx])
	c.captures[idx] = v
	return true
}

// Drop releases the descriptor reference and every capture.
func (c *Closure) Drop(h *Heap) {
	h.Release(c.fn)
	for _, v := range c.captures {
		h.Release(v)
	}
}
