package object

import (
	"testing"

	"github.com/mulang-project/mulang/value"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestHeapRetainReleaseDropsOnZero(t *testing.T) {
	h := NewHeap()
	v := h.Alloc(NewStr("hi"))
	assert(t, h.RefCount(v) == 1, "fresh alloc should have refcount 1")

	h.Retain(v)
	assert(t, h.RefCount(v) == 2, "retain should bump refcount")

	h.Release(v)
	assert(t, h.RefCount(v) == 1, "one release should bring it back to 1")

	h.Release(v)
	assert(t, h.RefCount(v) == 0, "second release should free the slot")

	_, ok := h.From(v)
	assert(t, !ok, "resolving a freed handle should fail")
}

func TestListDropReleasesElements(t *testing.T) {
	h := NewHeap()
	inner := h.Alloc(NewStr("inner"))

	l := NewList(nil)
	h.Retain(inner)
	l.Push(inner)
	outer := h.Alloc(l)

	h.Release(outer)
	assert(t, h.RefCount(inner) == 1, "dropping the list should release its elements")
}

func TestDictInsertOverwriteReleasesOldValue(t *testing.T) {
	h := NewHeap()
	d := NewDict()

	a := h.Alloc(NewStr("a"))
	b := h.Alloc(NewStr("b"))

	h.Retain(a)
	d.Insert(h, StrKey("k"), a)
	assert(t, h.RefCount(a) == 2, "insert should not itself retain; caller already did")

	h.Retain(b)
	d.Insert(h, StrKey("k"), b)
	assert(t, h.RefCount(a) == 1, "overwriting a key should release the old value")

	got, ok := d.Get(StrKey("k"))
	assert(t, ok && got.Bits() == b.Bits(), "expected overwritten value to be b")
}

func TestDisplayRendersNestedContainers(t *testing.T) {
	h := NewHeap()
	l := NewList(nil)
	l.Push(value.Int(1))
	l.Push(value.Int(2))
	lv := h.Alloc(l)

	got := Display(h, lv)
	assert(t, got == "[1, 2]", "got %q", got)
}

func TestClassInstantiateDeepCopiesFields(t *testing.T) {
	h := NewHeap()

	fields := NewDict()
	fields.Insert(h, StrKey("x"), value.Int(10))
	methods := NewDict()

	def := MakeClass("Point", methods, fields)
	defVal := h.Alloc(def)

	inst1 := def.Instantiate(h, defVal)
	inst2 := def.Instantiate(h, defVal)

	inst1.SetField(h, "x", value.Int(99))

	v1, _ := inst1.GetField("x")
	v2, _ := inst2.GetField("x")
	i1, _ := v1.AsInt()
	i2, _ := v2.AsInt()

	assert(t, i1 == 99, "instance 1 field should be mutated independently, got %d", i1)
	assert(t, i2 == 10, "instance 2 should keep its own copy, got %d", i2)
}

func TestClassDerivedInheritsParentFields(t *testing.T) {
	h := NewHeap()

	parentFields := NewDict()
	parentFields.Insert(h, StrKey("x"), value.Int(1))
	parentMethods := NewDict()
	parentDef := MakeClass("Base", parentMethods, parentFields)
	parentVal := h.Alloc(parentDef)

	childFields := NewDict()
	childFields.Insert(h, StrKey("y"), value.Int(2))
	childMethods := NewDict()

	childDef, err := MakeClassDerived(h, "Derived", parentVal, childMethods, childFields)
	assert(t, err == nil, "unexpected error: %v", err)

	_, hasX := childDef.Fields().Get(StrKey("x"))
	_, hasY := childDef.Fields().Get(StrKey("y"))
	assert(t, hasX, "derived class should inherit parent field x")
	assert(t, hasY, "derived class should keep its own field y")
}

func TestClosureDropReleasesCapturesAndDescriptor(t *testing.T) {
	h := NewHeap()
	fd := NewFunctionDescriptor("f", Params{MinArgs: 0, MaxArgs: 0}, 0, nil, nil, nil, "")
	fdVal := h.Alloc(fd)

	captured := h.Alloc(NewStr("captured"))
	h.Retain(fdVal)
	h.Retain(captured)

	cl := NewClosure(fdVal, []value.Value{captured})
	clVal := h.Alloc(cl)

	h.Release(clVal)
	assert(t, h.RefCount(fdVal) == 1, "closure drop should release the descriptor reference")
	assert(t, h.RefCount(captured) == 1, "closure drop should release every capture")
}

func TestFunctionDescriptorArityCheck(t *testing.T) {
	p := Params{MinArgs: 1, MaxArgs: 2}
	assert(t, p.Check(1) == nil, "1 arg should be valid")
	assert(t, p.Check(2) == nil, "2 args should be valid")
	assert(t, p.Check(0) != nil, "0 args should fail arity check")
	assert(t, p.Check(3) != nil, "3 args should fail arity check")
}
