package object

import (
	"fmt"

	"github.com/mulang-project/mulang/value"
	"github.com/mulang-project/mulang/vmerr"
)

// ClassDesc is the compile-time artifact the emitter produces for a
// class declaration: the set of method and field names in declaration
// order, plus whether the class declares a parent (spec §4.6's class
// model, grounded on class.rs's compile-time descriptor).
type ClassDesc struct {
	baseObject
	name       string
	methods    []string
	fields     []string
	hasParent  bool
}

// NewClassDesc builds a ClassDesc from the emitter's collected method
// and field names.
func NewClassDesc(name string, methods, fields []string, hasParent bool) *ClassDesc {
	return &ClassDesc{name: name, methods: methods, fields: fields, hasParent: hasParent}
}

func (c *ClassDesc) TypeID() TypeID    { return TypeClassDesc }
func (c *ClassDesc) TypeName() string  { return "class_desc" }
func (c *ClassDesc) IsFrozen() bool    { return true }
func (c *ClassDesc) Display(*Heap) string { return fmt.Sprintf("<class_desc %s>", c.name) }
func (c *ClassDesc) Debug(h *Heap) string { return c.Display(h) }

func (c *ClassDesc) Name() string        { return c.name }
func (c *ClassDesc) Methods() []string   { return c.methods }
func (c *ClassDesc) Fields() []string    { return c.fields }
func (c *ClassDesc) HasParent() bool     { return c.hasParent }

// ClassDef is the runtime class object MakeClass/MakeClassDerived
// produces: a name, an optional parent ClassDef, and dictionaries of
// methods and field defaults. Instances are built by deep-copying
// these dictionaries (spec §4.6 "child wins, parent fills gaps").
type ClassDef struct {
	baseObject
	name    string
	parent  value.Value // object handle to a *ClassDef, or none
	methods *Dict
	fields  *Dict
}

// MakeClass builds a root (parentless) ClassDef. methods and fields
// are Dicts already populated by the caller (typically the VM's
// MakeClass opcode handler, which pulls entries off the register
// window in declaration order).
func MakeClass(name string, methods, fields *Dict) *ClassDef {
	return &ClassDef{name: name, parent: value.None(), methods: methods, fields: fields}
}

// MakeClassDerived builds a ClassDef that inherits from parent: every
// method/field the child does not itself declare is filled in from
// the parent, recursively, so lookups never need to walk the parent
// chain at instantiation time (spec §4.6.2 "child wins, parent fills
// gaps").
func MakeClassDerived(h *Heap, name string, parent value.Value, methods, fields *Dict) (*ClassDef, error) {
	parentObj, ok := h.From(parent)
	if !ok {
		return nil, fmt.Errorf("%w: class parent is not a heap object", ErrNotAClass)
	}
	parentDef, ok := parentObj.(*ClassDef)
	if !ok {
		return nil, fmt.Errorf("%w: class parent is not a class", ErrNotAClass)
	}

	for _, e := range parentDef.methods.Items() {
		if !methods.Contains(e.Key) {
			h.Retain(e.Value)
			methods.Insert(h, e.Key, e.Value)
		}
	}
	for _, e := range parentDef.fields.Items() {
		if !fields.Contains(e.Key) {
			h.Retain(e.Value)
			fields.Insert(h, e.Key, e.Value)
		}
	}

	h.Retain(parent)
	return &ClassDef{name: name, parent: parent, methods: methods, fields: fields}, nil
}

// ErrNotAClass is returned when MakeClassDerived's parent operand does
// not resolve to a ClassDef.
var ErrNotAClass = fmt.Errorf("parent is not a class")

func (c *ClassDef) TypeID() TypeID    { return TypeClassDef }
func (c *ClassDef) TypeName() string  { return "class" }
func (c *ClassDef) IsFrozen() bool    { return true }
func (c *ClassDef) Display(*Heap) string { return fmt.Sprintf("<class %s>", c.name) }
func (c *ClassDef) Debug(h *Heap) string { return c.Display(h) }

func (c *ClassDef) Name() string    { return c.name }
func (c *ClassDef) Parent() value.Value { return c.parent }
func (c *ClassDef) Methods() *Dict   { return c.methods }
func (c *ClassDef) Fields() *Dict    { return c.fields }

// Drop releases the parent reference (if any) and cascades into the
// methods/fields dicts, which in turn release every Value they hold.
func (c *ClassDef) Drop(h *Heap) {
	h.Release(c.parent)
	c.methods.Drop(h)
	c.fields.Drop(h)
}

// Instantiate builds a new Class instance by deep-copying this
// definition's fields and methods dicts (spec §4.6.3: "constructing an
// instance deep-copies the class's field defaults and method table").
// Bound methods are not created eagerly: Class.GetField returns the
// bare function, and the VM's field-load path wraps it in a Method
// when ShouldBindMethods is set.
//
// classVal is the heap handle of this very ClassDef (the VM already
// holds it from the MakeClass/MakeClassDerived result); Class keeps it
// so a later `super` lookup can walk back to the defining ClassDef.
func (c *ClassDef) Instantiate(h *Heap, classVal value.Value) *Class {
	fields := NewDict()
	for _, e := range c.fields.Items() {
		h.Retain(e.Value)
		fields.Insert(h, e.Key, e.Value)
	}
	methods := NewDict()
	for _, e := range c.methods.Items() {
		h.Retain(e.Value)
		methods.Insert(h, e.Key, e.Value)
	}
	h.Retain(classVal)
	return &Class{classDef: classVal, fields: fields, methods: methods}
}

// Class is an instance: a classDef back reference, and independent,
// deep-copied fields/methods dicts. Its header is frozen from the
// moment it is created (IsFrozen is always true), including while init
// runs: StoreField can assign a field the class declares, but no new
// field can be added at any point. The field values themselves remain
// mutable through LoadField/StoreField.
type Class struct {
	baseObject
	classDef value.Value // handle to the *ClassDef this instance was built from
	fields   *Dict
	methods  *Dict
}

func (c *Class) TypeID() TypeID   { return TypeClass }
func (c *Class) TypeName() string { return "instance" }
func (c *Class) IsFrozen() bool   { return true }

func (c *Class) className(h *Heap) string {
	if obj, ok := h.From(c.classDef); ok {
		if def, ok := obj.(*ClassDef); ok {
			return def.Name()
		}
	}
	return "?"
}

func (c *Class) Display(h *Heap) string { return fmt.Sprintf("<%s instance>", c.className(h)) }
func (c *Class) Debug(h *Heap) string   { return c.Display(h) }

// ShouldBindMethods reports true: accessing a method field on a Class
// instance must yield a bound Method, not the bare function (spec
// §4.6.4 "method lookups bind `this` lazily on field access").
func (c *Class) ShouldBindMethods() bool { return true }

// ClassDefHandle returns the handle to the defining ClassDef, used by
// GetField to build a Method and by Super to build a Proxy.
func (c *Class) ClassDefHandle() value.Value { return c.classDef }

func (c *Class) GetField(name string) (value.Value, bool) {
	if v, ok := c.fields.Get(StrKey(name)); ok {
		return v, true
	}
	return c.methods.Get(StrKey(name))
}

// SetField assigns an existing field; it does not let a StoreField
// declare a new field or rebind a method, matching the frozen-header
// rule spec §4.6.1 describes: "read-only if the object is frozen and
// the field does not exist".
func (c *Class) SetField(h *Heap, name string, v value.Value) error {
	if !c.fields.Contains(StrKey(name)) {
		return fmt.Errorf("%w: instance has no field %q", vmerr.ErrFrozenError, name)
	}
	h.Retain(v)
	c.fields.Insert(h, StrKey(name), v)
	return nil
}

func (c *Class) Drop(h *Heap) {
	h.Release(c.classDef)
	c.fields.Drop(h)
	c.methods.Drop(h)
}

// Proxy is the read-only `super` view spec §4.6.5 describes: always
// frozen, and forwards field lookups to the parent ClassDef rather
// than to any instance, since the original language has no separate
// "parent instance" — methods resolved via `super` still run against
// the same underlying Class's fields.
type Proxy struct {
	baseObject
	target value.Value // the Class instance `super` was taken on
	parent value.Value // handle to the parent *ClassDef
}

// NewProxy builds a super-view over target, resolving field_get
// against parent (the ClassDef one level up from target's own class).
func NewProxy(target, parent value.Value) *Proxy {
	return &Proxy{target: target, parent: parent}
}

func (p *Proxy) TypeID() TypeID   { return TypeProxy }
func (p *Proxy) TypeName() string { return "super" }
func (p *Proxy) IsFrozen() bool   { return true }
func (p *Proxy) Display(*Heap) string { return "<super>" }
func (p *Proxy) Debug(h *Heap) string { return p.Display(h) }

// ShouldBindMethods reports true for the same reason Class does:
// `super.method()` must bind `this` to the original instance, not to
// the proxy.
func (p *Proxy) ShouldBindMethods() bool { return true }

// GetFieldWithHeap resolves a field against the parent ClassDef.
// Proxy cannot satisfy the plain FieldGetter interface since the
// lookup needs heap access to dereference p.parent (the same
// constraint Dict.GetByKey works around); the VM's LoadField handler
// special-cases *Proxy and calls this directly instead.
func (p *Proxy) GetFieldWithHeap(h *Heap, name string) (value.Value, bool) {
	parentObj, ok := h.From(p.parent)
	if !ok {
		return value.Value{}, false
	}
	def, ok := parentObj.(*ClassDef)
	if !ok {
		return value.Value{}, false
	}
	if v, ok := def.Fields().Get(StrKey(name)); ok {
		return v, true
	}
	return def.Methods().Get(StrKey(name))
}

// Parent returns the handle to the parent ClassDef `super` resolves
// against.
func (p *Proxy) Parent() value.Value { return p.parent }

// Target returns the original instance a bound super-method should
// receive as `this`.
func (p *Proxy) Target() value.Value { return p.target }

func (p *Proxy) Drop(h *Heap) {
	h.Release(p.target)
	h.Release(p.parent)
}

// Method is a flat (this, func) bound-method pair, created lazily (a
// new one on each read) when a method field of a Class, Proxy or
// UserData is read (spec
// §4.6.4). Calling a Method implicitly prepends `this` to the
// argument list.
type Method struct {
	baseObject
	this value.Value
	fn   value.Value
}

// NewMethod binds this to fn.
func NewMethod(this, fn value.Value) *Method {
	return &Method{this: this, fn: fn}
}

func (m *Method) TypeID() TypeID   { return TypeMethod }
func (m *Method) TypeName() string { return "method" }
func (m *Method) IsFrozen() bool   { return true }
func (m *Method) Display(*Heap) string { return "<bound method>" }
func (m *Method) Debug(h *Heap) string { return m.Display(h) }

func (m *Method) This() value.Value { return m.this }
func (m *Method) Func() value.Value { return m.fn }

func (m *Method) Drop(h *Heap) {
	h.Release(m.this)
	h.Release(m.fn)
}
