package emit

import (
	"go.uber.org/zap"

	"github.com/mulang-project/mulang/ast"
	"github.com/mulang-project/mulang/bytecode"
)

func internName(fs *FunctionState, name string) uint32 {
	return uint32(fs.pool.Intern(bytecode.StrConst(name)))
}

func smiFits(i int32) bool { return i >= -32768 && i <= 32767 }

// emitExpr compiles expr, leaving its value in acc (spec §4.5.3).
func (e *Emitter) emitExpr(fs *FunctionState, expr ast.Expr) error {
	switch n := expr.(type) {
	case *ast.Literal:
		return e.emitLiteral(fs, n)
	case *ast.Binary:
		return e.emitBinary(fs, n)
	case *ast.Unary:
		return e.emitUnary(fs, n)
	case *ast.GetVar:
		return e.emitGetVar(fs, n)
	case *ast.SetVar:
		return e.emitSetVar(fs, n)
	case *ast.GetField:
		return e.emitGetField(fs, n)
	case *ast.SetField:
		return e.emitSetField(fs, n)
	case *ast.GetIndex:
		return e.emitGetIndex(fs, n)
	case *ast.SetIndex:
		return e.emitSetIndex(fs, n)
	case *ast.Call:
		return e.emitCall(fs, n)
	case *ast.Block:
		return e.emitBlockExpr(fs, n)
	case *ast.IfExpr:
		return e.emitIfExpr(fs, n)
	case *ast.FuncExpr:
		return e.emitFuncExpr(fs, n)
	case *ast.Super:
		return e.emitSuper(fs, n)
	case *ast.ListExpr:
		return e.emitListExpr(fs, n)
	case *ast.DictExpr:
		return e.emitDictExpr(fs, n)
	default:
		return e.errf(expr.Span(), "emit: unsupported expression node %T", expr)
	}
}

func (e *Emitter) emitLiteral(fs *FunctionState, lit *ast.Literal) error {
	switch lit.Kind {
	case ast.LitNone:
		fs.builder.Emit(bytecode.LoadNone)
	case ast.LitBool:
		if lit.Bool {
			fs.builder.Emit(bytecode.LoadTrue)
		} else {
			fs.builder.Emit(bytecode.LoadFalse)
		}
	case ast.LitInt:
		if smiFits(lit.Int) {
			fs.builder.Emit(bytecode.LoadSmi, uint32(uint16(lit.Int)))
		} else {
			idx := fs.pool.Intern(bytecode.IntConst(int64(lit.Int)))
			fs.builder.Emit(bytecode.LoadConst, uint32(idx))
		}
	case ast.LitFloat:
		// Whole-valued floats still go through the constant pool: LoadSmi
		// always produces an int, so only genuine integer literals use it.
		idx := fs.pool.Intern(bytecode.FloatConst(lit.Float))
		fs.builder.Emit(bytecode.LoadConst, uint32(idx))
	case ast.LitStr:
		idx := fs.pool.Intern(bytecode.StrConst(lit.Str))
		fs.builder.Emit(bytecode.LoadConst, uint32(idx))
	}
	return nil
}

func (e *Emitter) emitBinary(fs *FunctionState, b *ast.Binary) error {
	if b.Op == ast.OpAnd || b.Op == ast.OpOr {
		return e.emitShortCircuit(fs, b)
	}
	if b.Op == ast.OpCoalesce {
		return e.emitCoalesce(fs, b)
	}

	if err := e.emitExpr(fs, b.Left); err != nil {
		return err
	}
	lhs := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(lhs))

	if err := e.emitExpr(fs, b.Right); err != nil {
		return err
	}
	fs.regs.Access(lhs)

	switch b.Op {
	case ast.OpAdd:
		fs.builder.Emit(bytecode.Add, uint32(lhs))
	case ast.OpSub:
		fs.builder.Emit(bytecode.Sub, uint32(lhs))
	case ast.OpMul:
		fs.builder.Emit(bytecode.Mul, uint32(lhs))
	case ast.OpDiv:
		fs.builder.Emit(bytecode.Div, uint32(lhs))
	case ast.OpRem:
		fs.builder.Emit(bytecode.Rem, uint32(lhs))
	case ast.OpPow:
		fs.builder.Emit(bytecode.Pow, uint32(lhs))
	case ast.OpEq:
		fs.builder.Emit(bytecode.CmpEq, uint32(lhs))
	case ast.OpNe:
		fs.builder.Emit(bytecode.CmpNe, uint32(lhs))
	case ast.OpGt:
		fs.builder.Emit(bytecode.CmpGt, uint32(lhs))
	case ast.OpGe:
		fs.builder.Emit(bytecode.CmpGe, uint32(lhs))
	case ast.OpLt:
		fs.builder.Emit(bytecode.CmpLt, uint32(lhs))
	case ast.OpLe:
		fs.builder.Emit(bytecode.CmpLe, uint32(lhs))
	default:
		return e.errf(b.Span(), "emit: unknown binary operator %v", b.Op)
	}
	return nil
}

// emitShortCircuit implements `and`/`or` without a dedicated opcode:
// evaluate the left operand, test its truthiness, and skip the right
// operand entirely when the result is already determined.
func (e *Emitter) emitShortCircuit(fs *FunctionState, b *ast.Binary) error {
	if err := e.emitExpr(fs, b.Left); err != nil {
		return err
	}
	end := fs.builder.NewLabel()
	if b.Op == ast.OpAnd {
		fs.builder.EmitJump(bytecode.JumpIfFalse, end)
	} else {
		fs.builder.EmitJump(bytecode.JumpIfTrue, end)
	}
	if err := e.emitExpr(fs, b.Right); err != nil {
		return err
	}
	fs.builder.BindLabel(end)
	return nil
}

// emitCoalesce implements `??`: unlike `or`, it tests none-ness
// specifically rather than general truthiness, so `0 ?? 5` yields 0.
func (e *Emitter) emitCoalesce(fs *FunctionState, b *ast.Binary) error {
	if err := e.emitExpr(fs, b.Left); err != nil {
		return err
	}
	lhs := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(lhs))

	fs.builder.Emit(bytecode.IsNone)
	useLeft := fs.builder.NewLabel()
	fs.builder.EmitJump(bytecode.JumpIfFalse, useLeft)

	if err := e.emitExpr(fs, b.Right); err != nil {
		return err
	}
	end := fs.builder.NewLabel()
	fs.builder.EmitJump(bytecode.Jump, end)

	fs.builder.BindLabel(useLeft)
	fs.regs.Access(lhs)
	fs.builder.Emit(bytecode.Load, uint32(lhs))

	fs.builder.BindLabel(end)
	return nil
}

func (e *Emitter) emitUnary(fs *FunctionState, u *ast.Unary) error {
	if err := e.emitExpr(fs, u.Operand); err != nil {
		return err
	}
	switch u.Op {
	case ast.OpNeg:
		fs.builder.Emit(bytecode.Neg)
	case ast.OpNot:
		fs.builder.Emit(bytecode.Not)
	}
	return nil
}

func (e *Emitter) emitGetVar(fs *FunctionState, n *ast.GetVar) error {
	loc := fs.resolve(n.Name)
	switch loc.kind {
	case varLocal:
		fs.regs.Access(loc.reg)
		fs.builder.Emit(bytecode.Load, uint32(loc.reg))
	case varUpvalue:
		fs.builder.Emit(bytecode.LoadUpvalue, uint32(loc.idx))
	case varModule:
		fs.builder.Emit(bytecode.LoadModuleVar, uint32(loc.idx))
	case varGlobal:
		e.log.Warn("resolving name as global (slow path)", zap.String("name", loc.name))
		fs.builder.Emit(bytecode.LoadGlobal, internName(fs, loc.name))
	}
	return nil
}

func (e *Emitter) emitSetVar(fs *FunctionState, n *ast.SetVar) error {
	if err := e.emitExpr(fs, n.Value); err != nil {
		return err
	}
	loc := fs.resolve(n.Name)
	switch loc.kind {
	case varLocal:
		fs.regs.Access(loc.reg)
		fs.builder.Emit(bytecode.Store, uint32(loc.reg))
	case varUpvalue:
		fs.builder.Emit(bytecode.StoreUpvalue, uint32(loc.idx))
	case varModule:
		fs.builder.Emit(bytecode.StoreModuleVar, uint32(loc.idx))
	case varGlobal:
		e.log.Warn("resolving name as global (slow path)", zap.String("name", loc.name))
		fs.builder.Emit(bytecode.StoreGlobal, internName(fs, loc.name))
	}
	return nil
}

func (e *Emitter) emitGetField(fs *FunctionState, n *ast.GetField) error {
	if err := e.emitExpr(fs, n.Target); err != nil {
		return err
	}
	op := bytecode.LoadField
	if n.Optional {
		op = bytecode.LoadFieldOpt
	}
	fs.builder.Emit(op, internName(fs, n.Name))
	return nil
}

func (e *Emitter) emitSetField(fs *FunctionState, n *ast.SetField) error {
	if err := e.emitExpr(fs, n.Target); err != nil {
		return err
	}
	targetReg := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(targetReg))

	if err := e.emitExpr(fs, n.Value); err != nil {
		return err
	}
	fs.regs.Access(targetReg)
	fs.builder.Emit(bytecode.StoreField, uint32(targetReg), internName(fs, n.Name))
	return nil
}

func (e *Emitter) emitGetIndex(fs *FunctionState, n *ast.GetIndex) error {
	if err := e.emitExpr(fs, n.Key); err != nil {
		return err
	}
	keyReg := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(keyReg))

	if err := e.emitExpr(fs, n.Target); err != nil {
		return err
	}
	fs.regs.Access(keyReg)
	fs.builder.Emit(bytecode.LoadIndex, uint32(keyReg))
	return nil
}

func (e *Emitter) emitSetIndex(fs *FunctionState, n *ast.SetIndex) error {
	if err := e.emitExpr(fs, n.Target); err != nil {
		return err
	}
	targetReg := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(targetReg))

	if err := e.emitExpr(fs, n.Key); err != nil {
		return err
	}
	keyReg := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(keyReg))

	if err := e.emitExpr(fs, n.Value); err != nil {
		return err
	}
	fs.regs.Access(targetReg)
	fs.regs.Access(keyReg)
	fs.builder.Emit(bytecode.StoreIndex, uint32(targetReg), uint32(keyReg))
	return nil
}

// emitCall evaluates the callee into a register window followed by
// its arguments, then emits Call (spec §4.6.3 "the callee in
// stack[base+callee] ... Push a new CallFrame: base' = base +
// callee_reg + 1").
func (e *Emitter) emitCall(fs *FunctionState, n *ast.Call) error {
	// callee and every argument land on one contiguous register window
	// (spec §4.6.3 "base' = base + callee_reg + 1"): the callee occupies
	// the window's first slot, the arguments the rest, in order.
	window := fs.regs.AllocWindow(1 + len(n.Args))

	if err := e.emitExpr(fs, n.Callee); err != nil {
		return err
	}
	fs.builder.Emit(bytecode.Store, uint32(window[0]))

	for i, arg := range n.Args {
		if err := e.emitExpr(fs, arg); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[1+i]))
	}

	fs.builder.Emit(bytecode.Call, uint32(window[0]), uint32(len(n.Args)))
	return nil
}

// emitBlockExpr compiles a block used as an expression: every
// statement but the last is emitted for effect; the last, if an
// ExprStmt, supplies acc's final value.
func (e *Emitter) emitBlockExpr(fs *FunctionState, b *ast.Block) error {
	fs.enterScope()
	defer fs.leaveScope()

	for i, stmt := range b.Body {
		if i == len(b.Body)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				return e.emitExpr(fs, es.Value)
			}
		}
		if err := e.emitStmt(fs, stmt); err != nil {
			return err
		}
	}
	fs.builder.Emit(bytecode.LoadNone)
	return nil
}

func (e *Emitter) emitIfExpr(fs *FunctionState, n *ast.IfExpr) error {
	end := fs.builder.NewLabel()
	for _, br := range n.Branches {
		next := fs.builder.NewLabel()
		if err := e.emitExpr(fs, br.Cond); err != nil {
			return err
		}
		fs.builder.EmitJump(bytecode.JumpIfFalse, next)
		if err := e.emitExpr(fs, br.Body); err != nil {
			return err
		}
		fs.builder.EmitJump(bytecode.Jump, end)
		fs.builder.BindLabel(next)
	}
	if n.Default != nil {
		if err := e.emitExpr(fs, n.Default); err != nil {
			return err
		}
	} else {
		fs.builder.Emit(bytecode.LoadNone)
	}
	fs.builder.BindLabel(end)
	return nil
}

func (e *Emitter) emitFuncExpr(fs *FunctionState, n *ast.FuncExpr) error {
	return e.emitClosureLiteral(fs, "<anonymous>", n.Params, n.HasSelf, n.Body, n.Span())
}

func (e *Emitter) emitSuper(fs *FunctionState, n *ast.Super) error {
	loc := fs.resolve("self")
	switch loc.kind {
	case varLocal:
		fs.regs.Access(loc.reg)
		fs.builder.Emit(bytecode.Load, uint32(loc.reg))
	default:
		return e.errf(n.Span(), "emit: `super` used outside of a method")
	}
	fs.builder.Emit(bytecode.LoadField, internName(fs, "__super__"))
	return nil
}

func (e *Emitter) emitListExpr(fs *FunctionState, n *ast.ListExpr) error {
	window := fs.regs.AllocWindow(len(n.Items))
	for i, item := range n.Items {
		if err := e.emitExpr(fs, item); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[i]))
	}
	base := uint32(0)
	if len(window) > 0 {
		base = uint32(window[0])
	}
	fs.builder.Emit(bytecode.MakeList, base, uint32(len(window)))
	return nil
}

func (e *Emitter) emitDictExpr(fs *FunctionState, n *ast.DictExpr) error {
	window := fs.regs.AllocWindow(len(n.Entries) * 2)
	for i, entry := range n.Entries {
		if err := e.emitExpr(fs, entry.Key); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[2*i]))

		if err := e.emitExpr(fs, entry.Value); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Store, uint32(window[2*i+1]))
	}
	base := uint32(0)
	if len(window) > 0 {
		base = uint32(window[0])
	}
	fs.builder.Emit(bytecode.MakeDict, base, uint32(len(n.Entries)))
	return nil
}
