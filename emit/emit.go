// Package emit lowers an ast.Module into a root object.FunctionDescriptor:
// the acc-plus-register bytecode of spec §4.6, a linear-scan-allocated
// register file (regalloc.go), and a per-function constant pool,
// grounded on the original compiler's src/emit tree (ported here as
// builder.go, state.go, regalloc.go) but targeting the accumulator dispatch model
// instead of a pure stack machine.
package emit

import (
	"go.uber.org/zap"

	"github.com/mulang-project/mulang/ast"
	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/vmerr"
)

// Emitter holds the state shared across an entire module's
// compilation: the object heap new FunctionDescriptors and ClassDescs
// are allocated into, and the source name attached to every
// descriptor for tracebacks (spec §7).
type Emitter struct {
	heap   *object.Heap
	source string
	log    *zap.Logger
}

// NewEmitter returns an Emitter allocating into heap, stamping source
// onto every FunctionDescriptor it produces. A nil logger falls back
// to a nop logger (the same tolerance vm.NewIsolate extends).
func NewEmitter(heap *object.Heap, source string) *Emitter {
	return &Emitter{heap: heap, source: source, log: zap.NewNop()}
}

// NewEmitterWithLogger is NewEmitter plus a diagnostic logger used for
// emit-time warnings — currently just the global-resolution fallback
// (spec §4.5.1 step 4, documented as the "slow path").
func NewEmitterWithLogger(heap *object.Heap, source string, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{heap: heap, source: source, log: logger}
}

func (e *Emitter) errf(span vmerr.Span, format string, args ...any) error {
	return vmerr.New(vmerr.ErrEmitError, span, format, args...)
}

// EmitModule compiles mod's top-level body into a module-root
// FunctionDescriptor (conventionally invoked by the host as
// `__main__`), with its own module-variable table shared by every
// function nested inside it (spec §3.5, §4.5.1).
func EmitModule(heap *object.Heap, mod *ast.Module, source string) (*object.FunctionDescriptor, error) {
	return EmitModuleWithLogger(heap, mod, source, nil)
}

// EmitModuleWithLogger is EmitModule with an explicit diagnostic
// logger (passed through to every nested closure/class emission).
func EmitModuleWithLogger(heap *object.Heap, mod *ast.Module, source string, logger *zap.Logger) (*object.FunctionDescriptor, error) {
	e := NewEmitterWithLogger(heap, source, logger)

	moduleVars := newModuleVarTable()
	root := newFunctionState(nil, true, moduleVars)

	for _, stmt := range mod.Body {
		if err := e.emitStmt(root, stmt); err != nil {
			return nil, err
		}
	}
	root.builder.Emit(bytecode.LoadNone)
	root.builder.Emit(bytecode.Return)

	if root.regs.Count() > maxVirtualRegisters {
		return nil, e.errf(vmerr.Span{}, "module uses %d registers, exceeding the %d limit", root.regs.Count(), maxVirtualRegisters)
	}

	code := root.builder.Finish()
	regCount, mapping := root.regs.Finish()
	bytecode.PatchRegisters(code, mapping)

	params := object.Params{MinArgs: 0, MaxArgs: 0}
	return object.NewFunctionDescriptor("__main__", params, regCount, code, root.pool, root.spans, source), nil
}

// emitClosureLiteral compiles params/body into a nested function,
// allocates its FunctionDescriptor onto the heap, interns it into the
// enclosing function's pool, and emits the MakeFn + Capture* sequence
// that builds the resulting closure in acc (spec §4.5.6).
func (e *Emitter) emitClosureLiteral(parent *FunctionState, name string, params []ast.Param, hasSelf bool, body []ast.Stmt, span vmerr.Span) error {
	child := newFunctionState(parent, false, parent.moduleVars)
	child.enterScope()

	names := make([]string, 0, len(params)+1)
	if hasSelf {
		reg := child.regs.Alloc()
		child.declareLocal("self", reg)
	}
	for _, p := range params {
		reg := child.regs.Alloc()
		child.declareLocal(p.Name, reg)
		names = append(names, p.Name)
	}

	if err := e.emitStmtList(child, body); err != nil {
		return err
	}
	child.builder.Emit(bytecode.LoadNone)
	child.builder.Emit(bytecode.Return)

	if child.regs.Count() > maxVirtualRegisters {
		return e.errf(span, "function %q uses %d registers, exceeding the %d limit", name, child.regs.Count(), maxVirtualRegisters)
	}

	code := child.builder.Finish()
	regCount, mapping := child.regs.Finish()
	bytecode.PatchRegisters(code, mapping)

	// The VM counts the receiver when it checks a method's arity, so
	// MinArgs/MaxArgs include the implicit self.
	argCount := len(params)
	if hasSelf {
		argCount++
	}
	fnParams := object.Params{
		Names:   names,
		MinArgs: argCount,
		MaxArgs: argCount,
		HasSelf: hasSelf,
	}
	fd := object.NewFunctionDescriptor(name, fnParams, regCount, code, child.pool, child.spans, e.source)
	fdVal := e.heap.Alloc(fd)

	constIdx := parent.pool.Intern(bytecode.ObjectConst(fdVal))
	parent.builder.Emit(bytecode.MakeFn, uint32(constIdx))

	for _, uv := range child.upvalues {
		if uv.fromLocal {
			parentReg := Register(uv.parentIndex)
			parent.regs.Access(parentReg)
			parent.builder.Emit(bytecode.CaptureReg, uint32(parentReg))
		} else {
			parent.builder.Emit(bytecode.CaptureSlot, uint32(uv.parentIndex))
		}
	}
	return nil
}

// emitClassDecl compiles a class declaration: every method becomes a
// nested closure (each with an implicit `self`), every field defaults
// to none, and the whole run is laid out in a register window so
// MakeClass/MakeClassDerived can read it as `count` consecutive
// registers (spec §4.6.2).
func (e *Emitter) emitClassDecl(fs *FunctionState, n *ast.Class) error {
	hasParent := n.Parent != ""
	windowLen := len(n.Methods) + len(n.Fields)
	if hasParent {
		windowLen++
	}
	window := fs.regs.AllocWindow(windowLen)
	idx := 0

	if hasParent {
		if err := e.emitGetVar(fs, ast.NewGetVar(n.Span(), n.Parent)); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[idx]))
		idx++
	}

	methodNames := make([]string, len(n.Methods))
	for i, m := range n.Methods {
		if err := e.emitClosureLiteral(fs, m.Name, m.Params, true, m.Body, m.Span()); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[idx]))
		methodNames[i] = m.Name
		idx++
	}

	for range n.Fields {
		fs.builder.Emit(bytecode.LoadNone)
		fs.builder.Emit(bytecode.Store, uint32(window[idx]))
		idx++
	}

	desc := object.NewClassDesc(n.Name, methodNames, n.Fields, hasParent)
	descVal := e.heap.Alloc(desc)
	constIdx := fs.pool.Intern(bytecode.ObjectConst(descVal))

	op := bytecode.MakeClass
	if hasParent {
		op = bytecode.MakeClassDerived
	}
	fs.builder.Emit(op, uint32(window[0]), uint32(constIdx), uint32(windowLen))
	return nil
}
