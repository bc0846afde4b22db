// Package object implements the polymorphic, reference-counted object
// heap the VM allocates concrete values into (strings, lists, dicts,
// function descriptors, closures, classes, methods, and host-provided
// natives). Every object lives behind a value.Handle; the Heap is the
// single owner of strong reference counts, mirroring the teacher's
// tight coupling between its VM and its (simpler, non-refcounted)
// program store.
package object

import (
	"fmt"

	"github.com/mulang-project/mulang/value"
)

// TypeID lets the VM downcast an erased Object back to its concrete
// kind without a full type switch at every call site, the same role
// the original runtime's type tag plays for its Ptr<Object> erasure.
type TypeID uint8

const (
	TypeStr TypeID = iota
	TypeList
	TypeDict
	TypeFunctionDescriptor
	TypeClosure
	TypeClassDesc
	TypeClassDef
	TypeClass
	TypeProxy
	TypeMethod
	TypeNativeFunction
	TypeNativeClass
	TypeUserData
)

func (t TypeID) String() string {
	switch t {
	case TypeStr:
		return "str"
	case TypeList:
		return "list"
	case TypeDict:
		return "dict"
	case TypeFunctionDescriptor:
		return "function"
	case TypeClosure:
		return "closure"
	case TypeClassDesc:
		return "class_desc"
	case TypeClassDef:
		return "class_def"
	case TypeClass:
		return "class"
	case TypeProxy:
		return "proxy"
	case TypeMethod:
		return "method"
	case TypeNativeFunction:
		return "native_function"
	case TypeNativeClass:
		return "native_class"
	case TypeUserData:
		return "user_data"
	default:
		return "?unknown?"
	}
}

// Object is the "any object" protocol every concrete heap kind
// implements: name/format, field access, and a type id for
// downcasting. Index access and calling are opt-in interfaces below
// since not every kind supports them.
type Object interface {
	TypeID() TypeID
	TypeName() string
	// Display and Debug take the owning heap so that container kinds
	// (List, Dict, Closure, Class) can recursively render the Values
	// they hold rather than their raw bit patterns.
	Display(h *Heap) string
	Debug(h *Heap) string
	IsFrozen() bool
	// ShouldBindMethods reports whether a function-valued field read
	// from this object should be wrapped into a bound Method. Classes,
	// proxies and native user data say yes; class descriptors/defs and
	// plain data kinds say no.
	ShouldBindMethods() bool
}

// FieldGetter is implemented by object kinds that support
// Load/StoreField.
type FieldGetter interface {
	GetField(name string) (value.Value, bool)
}

// FieldSetter is implemented by object kinds whose fields may be
// mutated. Setting an unknown field on a frozen object is a
// FrozenError at the VM layer.
type FieldSetter interface {
	SetField(heap *Heap, name string, v value.Value) error
}

// Indexer is implemented by List and Dict for LoadIndex/SetIndex.
type Indexer interface {
	GetIndex(key value.Value) (value.Value, error)
	SetIndex(heap *Heap, key value.Value, v value.Value) error
}

// Dropper is implemented by object kinds that themselves hold strong
// references to other Values (List, Dict, Closure, Class, ...); Drop
// is called exactly once, when the owning heap slot's count reaches
// zero, so the contained references can be released in turn.
type Dropper interface {
	Drop(h *Heap)
}

// header is the heap's internal cell: refcount plus the erased
// concrete object. There is no allocation-layout stamp the way the
// original needed for safe deallocation of an arbitrary Rust type,
// since the Go runtime already knows how to reclaim the concrete
// struct behind the Object interface value.
type header struct {
	refcount int32
	obj      Object
}

// Heap owns every object a single isolate allocates. It is not safe
// for concurrent use, matching spec §5: the isolate is single
// threaded and its heap is unshared.
type Heap struct {
	slots []*header
	free  []value.Handle
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc inserts obj into the heap with an initial strong count of one
// and returns the Value that owns that first reference.
func (h *Heap) Alloc(obj Object) value.Value {
	hdr := &header{refcount: 1, obj: obj}
	var handle value.Handle
	if n := len(h.free); n > 0 {
		handle = h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[handle] = hdr
	} else {
		handle = value.Handle(len(h.slots))
		h.slots = append(h.slots, hdr)
	}
	return value.FromHandle(handle)
}

// Object returns the concrete object a handle refers to, or nil if
// the handle is stale (already freed).
func (h *Heap) Object(handle value.Handle) Object {
	if int(handle) >= len(h.slots) {
		return nil
	}
	hdr := h.slots[handle]
	if hdr == nil {
		return nil
	}
	return hdr.obj
}

// From resolves a Value to its concrete Object, returning ok=false if
// v does not hold an object.
func (h *Heap) From(v value.Value) (Object, bool) {
	handle, ok := v.Handle()
	if !ok {
		return nil, false
	}
	obj := h.Object(handle)
	return obj, obj != nil
}

// Retain increments the strong count backing v, if v is an object,
// and returns v unchanged, mirroring Value::clone's bump-and-return
// shape from the original runtime.
func (h *Heap) Retain(v value.Value) value.Value {
	if handle, ok := v.Handle(); ok {
		if int(handle) < len(h.slots) {
			if hdr := h.slots[handle]; hdr != nil {
				hdr.refcount++
			}
		}
	}
	return v
}

// Release decrements the strong count backing v, if v is an object,
// freeing the slot (and cascading into Drop) once the count reaches
// zero.
func (h *Heap) Release(v value.Value) {
	handle, ok := v.Handle()
	if !ok {
		return
	}
	if int(handle) >= len(h.slots) {
		return
	}
	hdr := h.slots[handle]
	if hdr == nil {
		return
	}
	hdr.refcount--
	if hdr.refcount <= 0 {
		if d, ok := hdr.obj.(Dropper); ok {
			d.Drop(h)
		}
		h.slots[handle] = nil
		h.free = append(h.free, handle)
	}
}

// RefCount returns the current strong count for v's object, or 0 if v
// is not a live object. Exists primarily to let tests assert the
// clone/drop invariant from spec §8.
func (h *Heap) RefCount(v value.Value) int32 {
	handle, ok := v.Handle()
	if !ok {
		return 0
	}
	if int(handle) >= len(h.slots) {
		return 0
	}
	hdr := h.slots[handle]
	if hdr == nil {
		return 0
	}
	return hdr.refcount
}

// Display formats a Value the way the print builtin (spec §4.6.4)
// does: objects delegate to their Display method, everything else
// uses a fixed, kind-specific rendering.
func Display(h *Heap, v value.Value) string {
	switch {
	case v.IsNone():
		return "none"
	case v.IsBool():
		b, _ := v.AsBool()
		return fmt.Sprintf("%t", b)
	case v.IsInt():
		i, _ := v.AsInt()
		return fmt.Sprintf("%d", i)
	case v.IsFloat():
		f, _ := v.AsFloat()
		return fmt.Sprintf("%g", f)
	case v.IsObject():
		if obj, ok := h.From(v); ok {
			return obj.Display(h)
		}
		return "<freed object>"
	default:
		return "<invalid value>"
	}
}

// baseObject gives every concrete kind a sane ShouldBindMethods
// default (false); Class, Proxy and UserData override it.
type baseObject struct{}

func (baseObject) ShouldBindMethods() bool { return false }
