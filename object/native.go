package object

import (
	"fmt"

	"github.com/mulang-project/mulang/value"
)

// NativeFn is the Go-side shape a host function must have to be
// callable from bytecode (spec §4.7's native/host interface): it
// receives the owning heap, an optional bound receiver, and the
// argument list already validated against arity, and returns a
// single Value or an error the VM wraps into a RuntimeError.
type NativeFn func(h *Heap, this value.Value, args []value.Value) (value.Value, error)

// NativeFunction wraps a host-provided Go function so it can be
// stored in globals/fields and invoked by Call like any other
// callable (spec §4.7 "native functions are indistinguishable from
// script functions at the call site").
type NativeFunction struct {
	baseObject
	name   string
	params Params
	fn     NativeFn
}

// NewNativeFunction wraps fn under name with the given arity spec.
func NewNativeFunction(name string, params Params, fn NativeFn) *NativeFunction {
	return &NativeFunction{name: name, params: params, fn: fn}
}

func (n *NativeFunction) TypeID() TypeID    { return TypeNativeFunction }
func (n *NativeFunction) TypeName() string  { return "native_function" }
func (n *NativeFunction) IsFrozen() bool    { return true }
func (n *NativeFunction) Display(*Heap) string { return fmt.Sprintf("<native %s>", n.name) }
func (n *NativeFunction) Debug(h *Heap) string { return n.Display(h) }

func (n *NativeFunction) Name() string   { return n.name }
func (n *NativeFunction) Params() Params { return n.params }

// Invoke runs the wrapped Go function after validating arity,
// mirroring the bytecode Call path's own Params.Check step so native
// calls fail the same way script calls do on arity mismatch.
func (n *NativeFunction) Invoke(h *Heap, this value.Value, args []value.Value) (value.Value, error) {
	if err := n.params.Check(len(args)); err != nil {
		return value.Value{}, err
	}
	return n.fn(h, this, args)
}

// NativeClass is a host-defined class: a name plus a fixed table of
// native methods, instantiated the same way a script ClassDef is
// (spec §4.7 "host types participate in the class model"), except
// construction runs a host-provided constructor instead of copying
// field defaults.
type NativeClass struct {
	baseObject
	name    string
	methods map[string]*NativeFunction
	ctor    NativeFn
}

// NewNativeClass builds a host class. ctor may be nil, in which case
// instantiation produces a UserData with no payload until a method
// sets one.
func NewNativeClass(name string, methods map[string]*NativeFunction, ctor NativeFn) *NativeClass {
	return &NativeClass{name: name, methods: methods, ctor: ctor}
}

func (n *NativeClass) TypeID() TypeID    { return TypeNativeClass }
func (n *NativeClass) TypeName() string  { return "native_class" }
func (n *NativeClass) IsFrozen() bool    { return true }
func (n *NativeClass) Display(*Heap) string { return fmt.Sprintf("<native class %s>", n.name) }
func (n *NativeClass) Debug(h *Heap) string { return n.Display(h) }

func (n *NativeClass) Name() string { return n.name }

// Method looks up a native method by name.
func (n *NativeClass) Method(name string) (*NativeFunction, bool) {
	m, ok := n.methods[name]
	return m, ok
}

// Construct runs the host constructor (if any) and wraps the result
// payload in a UserData tagged with this class.
func (n *NativeClass) Construct(h *Heap, args []value.Value) (*UserData, error) {
	var payload any
	if n.ctor != nil {
		v, err := n.ctor(h, value.None(), args)
		if err != nil {
			return nil, err
		}
		payload = v
	}
	return &UserData{class: n, payload: payload}, nil
}

// UserData is an opaque host-owned payload attached to a NativeClass
// (spec §4.7 "opaque host payload"). The VM never inspects payload
// directly; native methods type-assert it back to their own Go type.
type UserData struct {
	baseObject
	class   *NativeClass
	payload any
}

func (u *UserData) TypeID() TypeID   { return TypeUserData }
func (u *UserData) TypeName() string { return "user_data" }
func (u *UserData) IsFrozen() bool   { return true }
func (u *UserData) Display(*Heap) string {
	if u.class != nil {
		return fmt.Sprintf("<%s user_data>", u.class.Name())
	}
	return "<user_data>"
}
func (u *UserData) Debug(h *Heap) string { return u.Display(h) }

// Class returns the NativeClass this payload was constructed from.
func (u *UserData) Class() *NativeClass { return u.class }

// Payload returns the opaque Go value a native method stashed here.
func (u *UserData) Payload() any { return u.payload }

// SetPayload replaces the opaque payload; native methods use this to
// mutate host-side state (e.g. advancing an iterator).
func (u *UserData) SetPayload(p any) { u.payload = p }

// UserData holds no script-visible fields; the VM's LoadField handler
// special-cases *UserData and resolves method names through its
// NativeClass directly rather than via the FieldGetter interface.
func (u *UserData) ShouldBindMethods() bool { return true }
