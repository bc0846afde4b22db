package emit

import (
	"github.com/samber/lo"

	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/vmerr"
)

// localVar is one entry in a FunctionState's locals list: the scope
// depth it was declared at, its source name, and the virtual register
// holding it (spec §4.5.1 "a list of locals (scope, name, register)").
type localVar struct {
	scope int
	name  string
	reg   Register
}

// upvalueDesc records one upvalue slot a FunctionState captures,
// either a direct parent local (captured via CaptureReg) or a
// forwarded parent upvalue (captured via CaptureSlot), per spec
// §4.5.1 step 2 and §4.5.6.
type upvalueDesc struct {
	name        string
	fromLocal   bool
	parentIndex int // parent register (fromLocal) or parent upvalue index
}

// loopCtx tracks the innermost loop's header/end labels so break and
// continue know where to jump (spec §4.5.4 "break/continue jump to
// the end label and the header label of the innermost loop").
type loopCtx struct {
	headerLabel int
	endLabel    int
}

// FunctionState is the emitter's per-function compilation context:
// locals, a register allocator, a bytecode builder with its own
// constant pool (spec §4.2 "a per-function vector of Constant
// values"), and a parent link for upvalue resolution (spec §4.5.1).
type FunctionState struct {
	parent *FunctionState

	pool    *bytecode.Pool
	builder *Builder
	regs    *RegAlloc

	scopeDepth int
	locals     []localVar
	upvalues   []upvalueDesc

	// spans maps an instruction's start byte offset to the source span
	// of the statement that produced it, the sparse per-instruction
	// debug table spec §6 attaches to every FunctionDescriptor.
	spans map[int]vmerr.Span

	currentLoop *loopCtx

	isModuleRoot bool
	moduleVars   *moduleVarTable // shared with the root FunctionState's module
}

// moduleVarTable assigns stable slot indices to module-level `let`
// declarations (spec §3.5, §4.5.1 "module access is by index through
// the enclosing module state").
type moduleVarTable struct {
	names []string
	index map[string]int
}

func newModuleVarTable() *moduleVarTable {
	return &moduleVarTable{index: map[string]int{}}
}

// declare returns the slot for name, allocating one if this is the
// first declaration (spec §4.5.2 "reusing the existing slot for x if
// one exists").
func (m *moduleVarTable) declare(name string) int {
	if idx, ok := m.index[name]; ok {
		return idx
	}
	idx := len(m.names)
	m.names = append(m.names, name)
	m.index[name] = idx
	return idx
}

func (m *moduleVarTable) lookup(name string) (int, bool) {
	idx, ok := m.index[name]
	return idx, ok
}

// newFunctionState starts a fresh nested function under parent (nil
// for the module root).
func newFunctionState(parent *FunctionState, isModuleRoot bool, moduleVars *moduleVarTable) *FunctionState {
	pool := bytecode.NewPool()
	return &FunctionState{
		parent:       parent,
		pool:         pool,
		builder:      NewBuilder(pool),
		regs:         NewRegAlloc(),
		isModuleRoot: isModuleRoot,
		moduleVars:   moduleVars,
		spans:        map[int]vmerr.Span{},
	}
}

func (fs *FunctionState) enterScope() { fs.scopeDepth++ }

// leaveScope pops every local declared at the scope being exited.
// Their registers are not explicitly freed: the register allocator's
// live-interval tracking (RegAlloc) already lets linear scan reuse
// them once their last access event has passed.
func (fs *FunctionState) leaveScope() {
	depth := fs.scopeDepth
	i := len(fs.locals)
	for i > 0 && fs.locals[i-1].scope >= depth {
		i--
	}
	fs.locals = fs.locals[:i]
	fs.scopeDepth--
}

// declareLocal records name as bound to reg in the current scope,
// shadowing any same-named local from an outer (but not the same)
// scope (spec §4.5.2).
func (fs *FunctionState) declareLocal(name string, reg Register) {
	fs.locals = append(fs.locals, localVar{scope: fs.scopeDepth, name: name, reg: reg})
}

// resolveLocalInScope finds name in the current scope only, used by
// `let` to decide whether a redeclaration should reuse its register
// (spec §4.5.2 "a subsequent let x = ... in the same scope reuses the
// same register"). leaveScope always truncates fs.locals down to the
// still-open scopes, so the last matching entry by (scope, name) is
// necessarily the most recent declaration in the current scope.
func (fs *FunctionState) resolveLocalInScope(name string) (Register, bool) {
	l, _, ok := lo.FindLastIndexOf(fs.locals, func(l localVar) bool {
		return l.scope == fs.scopeDepth && l.name == name
	})
	if !ok {
		return 0, false
	}
	return l.reg, true
}

// resolveLocal searches every local in this function, most recent
// first (spec §4.5.1 step 1).
func (fs *FunctionState) resolveLocal(name string) (Register, bool) {
	l, _, ok := lo.FindLastIndexOf(fs.locals, func(l localVar) bool { return l.name == name })
	if !ok {
		return 0, false
	}
	return l.reg, true
}

// resolveUpvalue recursively resolves name in the parent chain,
// creating (or reusing) an upvalue slot in this function for it
// (spec §4.5.1 step 2).
func (fs *FunctionState) resolveUpvalue(name string) (int, bool) {
	if fs.parent == nil {
		return 0, false
	}
	if _, idx, ok := lo.FindIndexOf(fs.upvalues, func(uv upvalueDesc) bool { return uv.name == name }); ok {
		return idx, true
	}
	if reg, ok := fs.parent.resolveLocal(name); ok {
		idx := len(fs.upvalues)
		fs.upvalues = append(fs.upvalues, upvalueDesc{name: name, fromLocal: true, parentIndex: int(reg)})
		return idx, true
	}
	if parentIdx, ok := fs.parent.resolveUpvalue(name); ok {
		idx := len(fs.upvalues)
		fs.upvalues = append(fs.upvalues, upvalueDesc{name: name, fromLocal: false, parentIndex: parentIdx})
		return idx, true
	}
	return 0, false
}

// varLoc describes where a resolved variable lives, for GetVar/SetVar
// emission.
type varLoc struct {
	kind varKind
	reg  Register
	idx  int
	name string
}

type varKind int

const (
	varLocal varKind = iota
	varUpvalue
	varModule
	varGlobal
)

// resolve implements the full spec §4.5.1 lookup order.
func (fs *FunctionState) resolve(name string) varLoc {
	if reg, ok := fs.resolveLocal(name); ok {
		return varLoc{kind: varLocal, reg: reg}
	}
	if idx, ok := fs.resolveUpvalue(name); ok {
		return varLoc{kind: varUpvalue, idx: idx}
	}
	if fs.moduleVars != nil {
		if idx, ok := fs.moduleVars.lookup(name); ok {
			return varLoc{kind: varModule, idx: idx}
		}
	}
	return varLoc{kind: varGlobal, name: name}
}
