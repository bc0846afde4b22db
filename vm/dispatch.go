package vm

import (
	"errors"
	"fmt"

	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/value"
	"github.com/mulang-project/mulang/vmerr"
)

// Run starts a fresh call at the bottom of the stack for fd (the
// module's `__main__` descriptor, spec §4.5) and drives it to
// completion, realizing spec §6's `eval(source) -> Value | Error` once
// a parser/emitter has turned source text into fd.
func (vm *Isolate) Run(fd *object.FunctionDescriptor) (value.Value, error) {
	return vm.call(fd, value.None(), nil, value.None())
}

// Call invokes a script-level callable (closure, bound method, class,
// or native) from outside the bytecode stream, realizing spec §6's
// `call(function_value, args, this) -> Value | Error`. this is bound
// as the callee's implicit self only when the callee itself does not
// already carry a bound receiver (a bare closure with HasSelf); a
// *object.Method ignores this and uses its own bound receiver instead.
func (vm *Isolate) Call(callee value.Value, args []value.Value, this value.Value) (value.Value, error) {
	obj, ok := vm.Heap.From(callee)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "value is not callable")
	}
	switch fn := obj.(type) {
	case *object.Closure:
		fd, ok := vm.Heap.From(fn.Descriptor())
		if !ok {
			return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "closure has no descriptor")
		}
		descriptor, ok := fd.(*object.FunctionDescriptor)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "closure has no descriptor")
		}
		full := args
		if descriptor.Params().HasSelf {
			full = append([]value.Value{this}, args...)
		}
		return vm.call(descriptor, vm.Heap.Retain(callee), full, value.None())
	case *object.Method:
		return vm.callMethod(fn, args)
	case *object.ClassDef:
		return vm.construct(callee, args, vmerr.Span{})
	case *object.NativeFunction:
		return fn.Invoke(vm.Heap, this, args)
	case *object.NativeClass:
		ud, err := fn.Construct(vm.Heap, args)
		if err != nil {
			return value.Value{}, err
		}
		return vm.Heap.Alloc(ud), nil
	default:
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "value is not callable")
	}
}

func (vm *Isolate) callMethod(m *object.Method, args []value.Value) (value.Value, error) {
	this := vm.Heap.Retain(m.This())
	fn := vm.Heap.Retain(m.Func())
	obj, ok := vm.Heap.From(fn)
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "method has no underlying function")
	}
	if nf, ok := obj.(*object.NativeFunction); ok {
		vm.Heap.Release(fn)
		result, err := nf.Invoke(vm.Heap, this, args)
		vm.Heap.Release(this)
		return result, err
	}
	closure, ok := obj.(*object.Closure)
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "method has no underlying function")
	}
	fdObj, ok := vm.Heap.From(closure.Descriptor())
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, vmerr.Span{}, "closure has no descriptor")
	}
	descriptor := fdObj.(*object.FunctionDescriptor)
	full := append([]value.Value{this}, args...)
	return vm.call(descriptor, fn, full, value.None())
}

// call is the shared entry point behind Run and Call's closure path:
// it pushes one fresh CallFrame beyond the current stack top, copies
// args into it, and drives runUntil to completion. closureVal is owned
// by the new frame (ownsClosure=true): it is never a register some
// other frame keeps alive, since the caller here is a host, not
// another frame.
func (vm *Isolate) call(descriptor *object.FunctionDescriptor, closureVal value.Value, args []value.Value, this value.Value) (value.Value, error) {
	if err := descriptor.Params().Check(len(args)); err != nil {
		vm.Heap.Release(closureVal)
		return value.Value{}, wrapErr(err, vmerr.Span{})
	}

	base := len(vm.stack)
	vm.ensureStack(base + descriptor.StackSpace())
	for i, a := range args {
		vm.stack[base+i] = vm.Heap.Retain(a)
	}

	floor := len(vm.frames)
	fr := newFrame(descriptor, closureVal, base, -1)
	fr.ownsClosure = closureVal.IsObject()
	vm.frames = append(vm.frames, fr)

	return vm.runUntil(floor)
}

// runUntil decodes and executes instructions until the frame stack is
// popped back down to floor, returning the accumulator's final value.
// Nested Call instructions simply push another frame and let this same
// loop continue, so recursive script calls never recurse at the Go
// level.
func (vm *Isolate) runUntil(floor int) (value.Value, error) {
	for len(vm.frames) > floor {
		fr := vm.currentFrame()
		instr, err := fr.dec.Next()
		if err != nil {
			ve := vmerr.New(vmerr.ErrRuntimeError, vmerr.Span{}, "truncated instruction stream")
			return value.Value{}, vm.unwind(floor, ve)
		}
		span := fr.descriptor.SpanAt(instr.Start)

		done, err := vm.exec(floor, instr, span)
		if err != nil {
			return value.Value{}, vm.unwind(floor, wrapErr(err, span))
		}
		if done {
			return vm.acc, nil
		}
	}
	return vm.acc, nil
}

// exec performs one decoded instruction against the current frame.
// done reports whether it returned all the way past floor (ending
// runUntil's loop).
func (vm *Isolate) exec(floor int, instr bytecode.Instruction, span vmerr.Span) (bool, error) {
	fr := vm.currentFrame()

	switch instr.Op {
	case bytecode.Nop:

	case bytecode.Load:
		vm.setAcc(vm.Heap.Retain(vm.stack[fr.base+int(instr.Operands[0])]))
	case bytecode.Store:
		reg := fr.base + int(instr.Operands[0])
		vm.Heap.Release(vm.stack[reg])
		vm.stack[reg] = vm.Heap.Retain(vm.acc)
	case bytecode.LoadConst:
		vm.setAcc(vm.constValue(fr, int(instr.Operands[0])))

	case bytecode.LoadUpvalue:
		closureObj, ok := vm.closureOf(fr)
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "not inside a closure")
		}
		v, ok := closureObj.Capture(int(instr.Operands[0]))
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "invalid upvalue index")
		}
		vm.setAcc(vm.Heap.Retain(v))
	case bytecode.StoreUpvalue:
		closureObj, ok := vm.closureOf(fr)
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "not inside a closure")
		}
		if !closureObj.SetCapture(vm.Heap, int(instr.Operands[0]), vm.Heap.Retain(vm.acc)) {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "invalid upvalue index")
		}

	case bytecode.LoadModuleVar:
		idx := int(instr.Operands[0])
		vm.ensureModuleVars(idx + 1)
		vm.setAcc(vm.Heap.Retain(vm.moduleVars[idx]))
	case bytecode.StoreModuleVar:
		idx := int(instr.Operands[0])
		vm.ensureModuleVars(idx + 1)
		vm.Heap.Release(vm.moduleVars[idx])
		vm.moduleVars[idx] = vm.Heap.Retain(vm.acc)

	case bytecode.LoadGlobal:
		name := vm.constValue(fr, int(instr.Operands[0]))
		nameStr, _ := vm.asStr(name)
		v, ok := vm.GetGlobal(nameStr)
		if !ok {
			return false, vmerr.New(vmerr.ErrNameError, span, "undefined global %q", nameStr)
		}
		vm.setAcc(vm.Heap.Retain(v))
	case bytecode.StoreGlobal:
		name := vm.constValue(fr, int(instr.Operands[0]))
		nameStr, _ := vm.asStr(name)
		vm.SetGlobal(nameStr, vm.acc)

	case bytecode.LoadField, bytecode.LoadFieldOpt:
		if instr.Op == bytecode.LoadFieldOpt && vm.acc.IsNone() {
			break
		}
		name := vm.constValue(fr, int(instr.Operands[0]))
		nameStr, _ := vm.asStr(name)
		v, err := vm.loadField(vm.acc, nameStr, span)
		if err != nil {
			return false, err
		}
		vm.setAcc(v)
	case bytecode.StoreField:
		targetVal := vm.stack[fr.base+int(instr.Operands[0])]
		name := vm.constValue(fr, int(instr.Operands[1]))
		nameStr, _ := vm.asStr(name)
		if err := vm.storeField(targetVal, nameStr, vm.acc, span); err != nil {
			return false, err
		}

	case bytecode.LoadIndex:
		keyVal := vm.stack[fr.base+int(instr.Operands[0])]
		v, err := vm.loadIndex(vm.acc, keyVal, span)
		if err != nil {
			return false, err
		}
		vm.setAcc(v)
	case bytecode.StoreIndex:
		targetVal := vm.stack[fr.base+int(instr.Operands[0])]
		keyVal := vm.stack[fr.base+int(instr.Operands[1])]
		if err := vm.storeIndex(targetVal, keyVal, vm.acc, span); err != nil {
			return false, err
		}

	case bytecode.LoadSmi:
		vm.setAcc(value.Int(int32(int16(instr.Operands[0]))))
	case bytecode.LoadTrue:
		vm.setAcc(value.Bool(true))
	case bytecode.LoadFalse:
		vm.setAcc(value.Bool(false))
	case bytecode.LoadNone:
		vm.setAcc(value.None())

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Rem, bytecode.Pow:
		lhs := vm.stack[fr.base+int(instr.Operands[0])]
		result, err := vm.binaryOp(instr.Op, lhs, vm.acc, span)
		if err != nil {
			return false, err
		}
		vm.setAcc(result)
	case bytecode.Neg:
		result, err := vm.negate(vm.acc, span)
		if err != nil {
			return false, err
		}
		vm.setAcc(result)
	case bytecode.Not:
		vm.setAcc(value.Bool(!vm.truthy(vm.acc)))
	case bytecode.IsNone:
		vm.setAcc(value.Bool(vm.acc.IsNone()))

	case bytecode.CmpEq:
		lhs := vm.stack[fr.base+int(instr.Operands[0])]
		vm.setAcc(value.Bool(vm.compareEq(lhs, vm.acc)))
	case bytecode.CmpNe:
		lhs := vm.stack[fr.base+int(instr.Operands[0])]
		vm.setAcc(value.Bool(!vm.compareEq(lhs, vm.acc)))
	case bytecode.CmpGt, bytecode.CmpGe, bytecode.CmpLt, bytecode.CmpLe:
		lhs := vm.stack[fr.base+int(instr.Operands[0])]
		ord, err := vm.compareOrd(lhs, vm.acc, span)
		if err != nil {
			return false, err
		}
		var result bool
		switch instr.Op {
		case bytecode.CmpGt:
			result = ord > 0
		case bytecode.CmpGe:
			result = ord >= 0
		case bytecode.CmpLt:
			result = ord < 0
		case bytecode.CmpLe:
			result = ord <= 0
		}
		vm.setAcc(value.Bool(result))

	case bytecode.Jump, bytecode.JumpIfFalse, bytecode.JumpIfTrue, bytecode.JumpLoop:
		if vm.shouldJump(instr.Op, vm.acc) {
			offset := bytecode.DecodeJumpOffset(instr.Operands[0])
			fr.dec.PC = instr.Start + int(offset)
		}
	case bytecode.JumpConst, bytecode.JumpIfFalseConst, bytecode.JumpIfTrueConst, bytecode.JumpLoopConst:
		if vm.shouldJump(instr.Op, vm.acc) {
			c := fr.descriptor.Pool().Get(int(instr.Operands[0]))
			fr.dec.PC = instr.Start + int(c.JumpOffset)
		}

	case bytecode.MakeFn:
		c := fr.descriptor.Pool().Get(int(instr.Operands[0]))
		fn := vm.Heap.Retain(c.Object)
		closure := object.NewClosure(fn, nil)
		vm.setAcc(vm.Heap.Alloc(closure))
	case bytecode.CaptureReg:
		v := vm.Heap.Retain(vm.stack[fr.base+int(instr.Operands[0])])
		obj, _ := vm.Heap.From(vm.acc)
		obj.(*object.Closure).AppendCapture(v)
	case bytecode.CaptureSlot:
		closureObj, ok := vm.closureOf(fr)
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "not inside a closure")
		}
		v, ok := closureObj.Capture(int(instr.Operands[0]))
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "invalid upvalue index")
		}
		obj, _ := vm.Heap.From(vm.acc)
		obj.(*object.Closure).AppendCapture(vm.Heap.Retain(v))

	case bytecode.Call:
		return vm.dispatchCall(fr, int(instr.Operands[0]), int(instr.Operands[1]), span)
	case bytecode.Return, bytecode.Yield:
		return vm.doReturn(floor)

	case bytecode.MakeClass:
		return false, vm.makeClass(fr, int(instr.Operands[0]), int(instr.Operands[1]), int(instr.Operands[2]), false, span)
	case bytecode.MakeClassDerived:
		return false, vm.makeClass(fr, int(instr.Operands[0]), int(instr.Operands[1]), int(instr.Operands[2]), true, span)

	case bytecode.MakeList:
		base := fr.base + int(instr.Operands[0])
		count := int(instr.Operands[1])
		items := make([]value.Value, count)
		for i := 0; i < count; i++ {
			items[i] = vm.Heap.Retain(vm.stack[base+i])
		}
		vm.setAcc(vm.Heap.Alloc(object.NewList(items)))
	case bytecode.MakeDict:
		base := fr.base + int(instr.Operands[0])
		count := int(instr.Operands[1])
		d := object.NewDict()
		for i := 0; i < 2*count; i += 2 {
			k, err := object.KeyFromValue(vm.Heap, vm.stack[base+i])
			if err != nil {
				return false, wrapErr(err, span)
			}
			d.Insert(vm.Heap, k, vm.Heap.Retain(vm.stack[base+i+1]))
		}
		vm.setAcc(vm.Heap.Alloc(d))

	case bytecode.Print:
		fmt.Fprintln(vm.Stdout, object.Display(vm.Heap, vm.acc))
	case bytecode.PrintN:
		base := fr.base + int(instr.Operands[0])
		count := int(instr.Operands[1])
		for i := 0; i < count; i++ {
			if i > 0 {
				fmt.Fprint(vm.Stdout, " ")
			}
			fmt.Fprint(vm.Stdout, object.Display(vm.Heap, vm.stack[base+i]))
		}
		fmt.Fprintln(vm.Stdout)

	default:
		return false, vmerr.New(vmerr.ErrRuntimeError, span, "unimplemented opcode %s", instr.Op)
	}
	return false, nil
}

func (vm *Isolate) shouldJump(op bytecode.Op, acc value.Value) bool {
	switch op {
	case bytecode.Jump, bytecode.JumpConst, bytecode.JumpLoop, bytecode.JumpLoopConst:
		return true
	case bytecode.JumpIfFalse, bytecode.JumpIfFalseConst:
		return !vm.truthy(acc)
	case bytecode.JumpIfTrue, bytecode.JumpIfTrueConst:
		return vm.truthy(acc)
	default:
		return false
	}
}

// constValue materializes a pool constant as a Value: scalars are
// constructed fresh (they carry no heap identity), objects are
// returned as-is (the pool already holds the sole permanent reference
// to the FunctionDescriptor/ClassDesc it interned at compile time;
// callers that adopt a copy of their own, like MakeFn, retain it).
func (vm *Isolate) constValue(fr *frame, idx int) value.Value {
	c := fr.descriptor.Pool().Get(idx)
	switch c.Kind {
	case bytecode.ConstFloat:
		return value.Float(c.Float)
	case bytecode.ConstInt:
		return value.Int(int32(c.Int))
	case bytecode.ConstStr:
		return vm.Heap.Alloc(object.NewStr(c.Str))
	case bytecode.ConstObject:
		return c.Object
	default:
		return value.None()
	}
}

func (vm *Isolate) closureOf(fr *frame) (*object.Closure, bool) {
	obj, ok := vm.Heap.From(fr.closure)
	if !ok {
		return nil, false
	}
	c, ok := obj.(*object.Closure)
	return c, ok
}

func (vm *Isolate) ensureModuleVars(n int) {
	for len(vm.moduleVars) < n {
		vm.moduleVars = append(vm.moduleVars, value.None())
	}
}

// loadField resolves name against obj, recognizing the magic
// "__super__" name on a Class instance (the desugaring `emitSuper`
// relies on) by synthesizing a fresh Proxy over the instance's parent
// ClassDef, and otherwise delegating to the generic FieldGetter
// protocol, binding a function-valued result into a Method when the
// receiver asks for it (spec §4.6.4's lazy-bind rule).
func (vm *Isolate) loadField(recv value.Value, name string, span vmerr.Span) (value.Value, error) {
	obj, ok := vm.Heap.From(recv)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "cannot read field %q of a non-object value", name)
	}

	if cls, ok := obj.(*object.Class); ok && name == "__super__" {
		def, ok := vm.Heap.From(cls.ClassDefHandle())
		if !ok {
			return value.Value{}, vmerr.New(vmerr.ErrRuntimeError, span, "instance has no class")
		}
		classDef, ok := def.(*object.ClassDef)
		if !ok || !classDef.Parent().IsObject() {
			return value.Value{}, vmerr.New(vmerr.ErrNameError, span, "class has no parent")
		}
		proxy := object.NewProxy(vm.Heap.Retain(recv), vm.Heap.Retain(classDef.Parent()))
		return vm.Heap.Alloc(proxy), nil
	}

	if ud, ok := obj.(*object.UserData); ok {
		m, ok := ud.Class().Method(name)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.ErrNameError, span, "no field %q", name)
		}
		fnVal := vm.Heap.Alloc(m)
		method := object.NewMethod(vm.Heap.Retain(recv), fnVal)
		return vm.Heap.Alloc(method), nil
	}

	if proxy, ok := obj.(*object.Proxy); ok {
		v, ok := proxy.GetFieldWithHeap(vm.Heap, name)
		if !ok {
			return value.Value{}, vmerr.New(vmerr.ErrNameError, span, "no field %q", name)
		}
		return vm.bindIfNeeded(proxy, proxy.Target(), v, span)
	}

	getter, ok := obj.(object.FieldGetter)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "value has no fields")
	}
	v, ok := getter.GetField(name)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrNameError, span, "no field %q", name)
	}
	return vm.bindIfNeeded(obj, recv, v, span)
}

// bindIfNeeded wraps v in a bound Method when binder asks for it and v
// is itself callable script code (a Closure); native methods looked up
// this way (NativeClass instances reached via a generic FieldGetter)
// are not retrieved through this path today, so no NativeFunction case
// is needed here.
func (vm *Isolate) bindIfNeeded(binder object.Object, this value.Value, v value.Value, span vmerr.Span) (value.Value, error) {
	if !binder.ShouldBindMethods() {
		return vm.Heap.Retain(v), nil
	}
	obj, ok := vm.Heap.From(v)
	if !ok {
		return vm.Heap.Retain(v), nil
	}
	if _, ok := obj.(*object.Closure); !ok {
		return vm.Heap.Retain(v), nil
	}
	method := object.NewMethod(vm.Heap.Retain(this), vm.Heap.Retain(v))
	return vm.Heap.Alloc(method), nil
}

func (vm *Isolate) storeField(recv value.Value, name string, v value.Value, span vmerr.Span) error {
	obj, ok := vm.Heap.From(recv)
	if !ok {
		return vmerr.New(vmerr.ErrTypeError, span, "cannot set field %q of a non-object value", name)
	}
	setter, ok := obj.(object.FieldSetter)
	if !ok {
		return vmerr.New(vmerr.ErrFrozenError, span, "value has no mutable fields")
	}
	if err := setter.SetField(vm.Heap, name, vm.Heap.Retain(v)); err != nil {
		vm.Heap.Release(v)
		return wrapErr(err, span)
	}
	return nil
}

func (vm *Isolate) loadIndex(container, keyVal value.Value, span vmerr.Span) (value.Value, error) {
	obj, ok := vm.Heap.From(container)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "value is not indexable")
	}
	if d, ok := obj.(*object.Dict); ok {
		v, err := d.GetByKey(vm.Heap, keyVal)
		if err != nil {
			return value.Value{}, wrapErr(err, span)
		}
		return vm.Heap.Retain(v), nil
	}
	indexer, ok := obj.(object.Indexer)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "value is not indexable")
	}
	v, err := indexer.GetIndex(keyVal)
	if err != nil {
		return value.Value{}, wrapErr(err, span)
	}
	return vm.Heap.Retain(v), nil
}

func (vm *Isolate) storeIndex(container, keyVal, v value.Value, span vmerr.Span) error {
	obj, ok := vm.Heap.From(container)
	if !ok {
		return vmerr.New(vmerr.ErrTypeError, span, "value is not indexable")
	}
	if d, ok := obj.(*object.Dict); ok {
		if err := d.SetByKey(vm.Heap, keyVal, v); err != nil {
			return wrapErr(err, span)
		}
		return nil
	}
	indexer, ok := obj.(object.Indexer)
	if !ok {
		return vmerr.New(vmerr.ErrTypeError, span, "value is not indexable")
	}
	if err := indexer.SetIndex(vm.Heap, keyVal, v); err != nil {
		return wrapErr(err, span)
	}
	return nil
}

// dispatchCall implements the Call opcode across every callable kind
// (spec §4.6.3). calleeReg is the (already patched, physical) window
// start: window[0] holds
// the callee, window[1..argc] the arguments, already populated by the
// emitter's emitCall.
func (vm *Isolate) dispatchCall(fr *frame, calleeReg, argc int, span vmerr.Span) (bool, error) {
	calleeAbs := fr.base + calleeReg
	calleeVal := vm.stack[calleeAbs]
	obj, ok := vm.Heap.From(calleeVal)
	if !ok {
		return false, vmerr.New(vmerr.ErrTypeError, span, "value is not callable")
	}

	switch callee := obj.(type) {
	case *object.Closure:
		fdObj, ok := vm.Heap.From(callee.Descriptor())
		if !ok {
			return false, vmerr.New(vmerr.ErrRuntimeError, span, "closure has no descriptor")
		}
		descriptor := fdObj.(*object.FunctionDescriptor)
		if err := descriptor.Params().Check(argc); err != nil {
			return false, wrapErr(err, span)
		}
		base := calleeAbs + 1
		vm.ensureStack(base + descriptor.StackSpace())
		newFr := newFrame(descriptor, calleeVal, base, calleeAbs)
		newFr.ownsClosure = false
		vm.frames = append(vm.frames, newFr)
		return false, nil

	case *object.Method:
		this := vm.Heap.Retain(callee.This())
		fn := vm.Heap.Retain(callee.Func())
		return vm.dispatchBoundCall(fr, calleeAbs, argc, this, fn, nil, span)

	case *object.ClassDef:
		return vm.dispatchConstruct(fr, calleeAbs, argc, calleeVal, span)

	case *object.NativeFunction:
		args := vm.collectArgs(calleeAbs+1, argc)
		result, err := callee.Invoke(vm.Heap, value.None(), args)
		vm.releaseArgs(calleeAbs+1, argc)
		if err != nil {
			return false, wrapErr(err, span)
		}
		vm.setAcc(result)
		return false, nil

	case *object.NativeClass:
		args := vm.collectArgs(calleeAbs+1, argc)
		ud, err := callee.Construct(vm.Heap, args)
		vm.releaseArgs(calleeAbs+1, argc)
		if err != nil {
			return false, wrapErr(err, span)
		}
		vm.setAcc(vm.Heap.Alloc(ud))
		return false, nil

	default:
		return false, vmerr.New(vmerr.ErrTypeError, span, "value is not callable")
	}
}

// dispatchBoundCall pushes a frame for a bound-method call (or a
// constructor's init call, via ctorResult): the callee register is
// overwritten with this (moved in, a fresh single-owner reference), so
// the new frame must own fn itself since nothing else keeps it alive.
func (vm *Isolate) dispatchBoundCall(fr *frame, calleeAbs, argc int, this, fn value.Value, ctorResult *value.Value, span vmerr.Span) (bool, error) {
	obj, ok := vm.Heap.From(fn)
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return false, vmerr.New(vmerr.ErrTypeError, span, "method has no underlying function")
	}

	if nf, ok := obj.(*object.NativeFunction); ok {
		vm.Heap.Release(fn)
		args := vm.collectArgs(calleeAbs+1, argc)
		result, err := nf.Invoke(vm.Heap, this, args)
		vm.releaseArgs(calleeAbs+1, argc)
		vm.Heap.Release(this)
		if err != nil {
			return false, wrapErr(err, span)
		}
		vm.setAcc(result)
		return false, nil
	}

	closure, ok := obj.(*object.Closure)
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return false, vmerr.New(vmerr.ErrTypeError, span, "method has no underlying function")
	}
	fdObj, ok := vm.Heap.From(closure.Descriptor())
	if !ok {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return false, vmerr.New(vmerr.ErrRuntimeError, span, "closure has no descriptor")
	}
	descriptor := fdObj.(*object.FunctionDescriptor)
	if err := descriptor.Params().Check(argc + 1); err != nil {
		vm.Heap.Release(this)
		vm.Heap.Release(fn)
		return false, wrapErr(err, span)
	}

	vm.Heap.Release(vm.stack[calleeAbs])
	vm.stack[calleeAbs] = this

	base := calleeAbs
	vm.ensureStack(base + descriptor.StackSpace())
	newFr := newFrame(descriptor, fn, base, calleeAbs)
	newFr.ownsClosure = true
	if ctorResult != nil {
		newFr.hasCtorResult = true
		newFr.ctorResult = *ctorResult
	}
	vm.frames = append(vm.frames, newFr)
	return false, nil
}

// dispatchConstruct implements calling a ClassDef (spec §4.6.3's
// implicit instantiate-then-init convention): instantiate a fresh
// instance, and if the class defines "init", route it through the
// bound-call path with the instance stashed as the eventual result;
// otherwise the instance itself is the result and the call must pass
// no arguments.
func (vm *Isolate) dispatchConstruct(fr *frame, calleeAbs, argc int, classVal value.Value, span vmerr.Span) (bool, error) {
	classObj, _ := vm.Heap.From(classVal)
	classDef := classObj.(*object.ClassDef)
	instance := classDef.Instantiate(vm.Heap, classVal)
	instanceVal := vm.Heap.Alloc(instance)

	initVal, hasInit := instance.GetField("init")
	if !hasInit {
		if err := (object.Params{MinArgs: 0, MaxArgs: 0}).Check(argc); err != nil {
			vm.Heap.Release(instanceVal)
			return false, wrapErr(err, span)
		}
		vm.setAcc(instanceVal)
		return false, nil
	}

	fn := vm.Heap.Retain(initVal)
	ctorResult := vm.Heap.Retain(instanceVal)
	return vm.dispatchBoundCall(fr, calleeAbs, argc, instanceVal, fn, &ctorResult, span)
}

// construct is the host-call (vm.Call) counterpart of dispatchConstruct,
// used when a ClassDef is invoked via Isolate.Call rather than the Call
// opcode; it has no caller register window to reuse, so it drives
// runUntil directly instead of pushing onto an in-progress frame.
func (vm *Isolate) construct(classVal value.Value, args []value.Value, span vmerr.Span) (value.Value, error) {
	classObj, ok := vm.Heap.From(classVal)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "value is not a class")
	}
	classDef, ok := classObj.(*object.ClassDef)
	if !ok {
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "value is not a class")
	}
	instance := classDef.Instantiate(vm.Heap, classVal)
	instanceVal := vm.Heap.Alloc(instance)

	initVal, hasInit := instance.GetField("init")
	if !hasInit {
		if err := (object.Params{MinArgs: 0, MaxArgs: 0}).Check(len(args)); err != nil {
			vm.Heap.Release(instanceVal)
			return value.Value{}, wrapErr(err, span)
		}
		return instanceVal, nil
	}

	m := object.NewMethod(vm.Heap.Retain(instanceVal), vm.Heap.Retain(initVal))
	methodVal := vm.Heap.Alloc(m)
	result, err := vm.Call(methodVal, args, value.None())
	vm.Heap.Release(methodVal)
	if err != nil {
		vm.Heap.Release(instanceVal)
		return value.Value{}, err
	}
	vm.Heap.Release(result)
	return instanceVal, nil
}

func (vm *Isolate) collectArgs(base, argc int) []value.Value {
	args := make([]value.Value, argc)
	copy(args, vm.stack[base:base+argc])
	return args
}

func (vm *Isolate) releaseArgs(base, argc int) {
	for i := 0; i < argc; i++ {
		vm.Heap.Release(vm.stack[base+i])
		vm.stack[base+i] = value.None()
	}
}

// doReturn pops the current frame: its register window is released
// (cascading refcount drops through every local/arg it still holds),
// and if the frame was running a constructor's init method, acc is
// reset to the constructed instance rather than whatever init itself
// returned (spec §4.6.3's "Return" convention, specialized for the
// implicit constructor case).
func (vm *Isolate) doReturn(floor int) (bool, error) {
	fr := vm.currentFrame()
	ctorResult, hasCtorResult := fr.ctorResult, fr.hasCtorResult
	ownsClosure, closure := fr.ownsClosure, fr.closure

	vm.releaseWindow(fr)
	vm.frames = vm.frames[:len(vm.frames)-1]
	if ownsClosure {
		vm.Heap.Release(closure)
	}

	if hasCtorResult {
		vm.setAcc(ctorResult)
	}

	return len(vm.frames) <= floor, nil
}

// makeClass implements MakeClass/MakeClassDerived: window[0] holds the
// parent (derived only), followed by one closure per method name and
// one default value per field name, per the ClassDesc the emitter
// interned (spec §4.4/§4.6.3).
func (vm *Isolate) makeClass(fr *frame, windowReg, constIdx, windowLen int, derived bool, span vmerr.Span) error {
	c := fr.descriptor.Pool().Get(constIdx)
	descObj, ok := vm.Heap.From(c.Object)
	if !ok {
		return vmerr.New(vmerr.ErrRuntimeError, span, "class descriptor missing")
	}
	desc := descObj.(*object.ClassDesc)

	window := fr.base + windowReg
	i := window
	var parent value.Value
	if derived {
		parent = vm.stack[i]
		i++
	}

	methods := object.NewDict()
	for _, name := range desc.Methods() {
		v := vm.Heap.Retain(vm.stack[i])
		methods.Insert(vm.Heap, object.StrKey(name), v)
		i++
	}
	fields := object.NewDict()
	for _, name := range desc.Fields() {
		v := vm.Heap.Retain(vm.stack[i])
		fields.Insert(vm.Heap, object.StrKey(name), v)
		i++
	}

	var classDef *object.ClassDef
	if derived {
		var err error
		classDef, err = object.MakeClassDerived(vm.Heap, desc.Name(), parent, methods, fields)
		if err != nil {
			return wrapErr(err, span)
		}
	} else {
		classDef = object.MakeClass(desc.Name(), methods, fields)
	}
	vm.setAcc(vm.Heap.Alloc(classDef))
	_ = windowLen
	return nil
}

// wrapErr normalizes err into a concrete *vmerr.Error stamped with
// span: a lower-level call site that already produced one (arith.go's
// division-by-zero, for instance) passes through untouched, since its
// span was already correct at the point it was raised; a plain
// fmt.Errorf-wrapped sentinel (object/dict.go, object/list.go,
// object/class.go, object/function.go) is reclassified by walking the
// sentinel kinds with errors.Is.
func wrapErr(err error, span vmerr.Span) *vmerr.Error {
	var ve *vmerr.Error
	if errors.As(err, &ve) {
		return ve
	}
	for _, kind := range []error{
		vmerr.ErrParseError,
		vmerr.ErrEmitError,
		vmerr.ErrTypeError,
		vmerr.ErrNameError,
		vmerr.ErrArityError,
		vmerr.ErrFrozenError,
		vmerr.ErrRuntimeError,
	} {
		if errors.Is(err, kind) {
			return vmerr.New(kind, span, "%s", err.Error())
		}
	}
	return vmerr.New(vmerr.ErrRuntimeError, span, "%s", err.Error())
}

// unwind pops every frame down to floor on an error path, collecting
// one PC per unwound frame (outermost first) and releasing each
// frame's register window and owned closure/ctor-result references
// (spec §7 "the VM unwinds all frames up to the nearest host call
// boundary, dropping each frame's stack window").
func (vm *Isolate) unwind(floor int, err *vmerr.Error) error {
	for len(vm.frames) > floor {
		fr := vm.currentFrame()
		err.Frames = append([]uint32{uint32(fr.dec.PC)}, err.Frames...)
		vm.releaseWindow(fr)
		if fr.ownsClosure {
			vm.Heap.Release(fr.closure)
		}
		if fr.hasCtorResult {
			vm.Heap.Release(fr.ctorResult)
		}
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return err
}
