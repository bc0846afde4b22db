package emit

import (
	"github.com/mulang-project/mulang/ast"
	"github.com/mulang-project/mulang/bytecode"
)

// bindName stores acc into the slot `name` resolves to at the current
// scope, following the same preference order emitGetVar/emitSetVar
// use, reusing (rather than reallocating) an existing local in the
// current scope (spec §4.5.2 "redeclaration is semantically
// equivalent to assignment ... reuses the same register").
func (e *Emitter) bindName(fs *FunctionState, name string) {
	if fs.isModuleRoot && fs.scopeDepth == 0 {
		idx := fs.moduleVars.declare(name)
		fs.builder.Emit(bytecode.StoreModuleVar, uint32(idx))
		return
	}
	if reg, ok := fs.resolveLocalInScope(name); ok {
		fs.regs.Access(reg)
		fs.builder.Emit(bytecode.Store, uint32(reg))
		return
	}
	reg := fs.regs.Alloc()
	fs.builder.Emit(bytecode.Store, uint32(reg))
	fs.declareLocal(name, reg)
}

func (e *Emitter) emitStmtList(fs *FunctionState, stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := e.emitStmt(fs, s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitStmt(fs *FunctionState, stmt ast.Stmt) error {
	fs.spans[fs.builder.Len()] = stmt.Span()
	switch n := stmt.(type) {
	case *ast.Var:
		return e.emitVarStmt(fs, n)
	case *ast.If:
		return e.emitIfStmt(fs, n)
	case *ast.Loop:
		return e.emitLoopStmt(fs, n)
	case *ast.Ctrl:
		return e.emitCtrlStmt(fs, n)
	case *ast.Func:
		return e.emitFuncStmt(fs, n)
	case *ast.Class:
		return e.emitClassStmt(fs, n)
	case *ast.ExprStmt:
		return e.emitExpr(fs, n.Value)
	case *ast.Pass:
		return nil
	case *ast.Print:
		return e.emitPrintStmt(fs, n)
	case *ast.Import:
		return e.emitImportStmt(fs, n)
	default:
		return e.errf(stmt.Span(), "emit: unsupported statement node %T", stmt)
	}
}

func (e *Emitter) emitVarStmt(fs *FunctionState, v *ast.Var) error {
	if err := e.emitExpr(fs, v.Value); err != nil {
		return err
	}
	e.bindName(fs, v.Name)
	return nil
}

func (e *Emitter) emitIfStmt(fs *FunctionState, n *ast.If) error {
	end := fs.builder.NewLabel()
	for _, br := range n.Branches {
		next := fs.builder.NewLabel()
		if err := e.emitExpr(fs, br.Cond); err != nil {
			return err
		}
		fs.builder.EmitJump(bytecode.JumpIfFalse, next)

		fs.enterScope()
		if err := e.emitStmtList(fs, br.Body); err != nil {
			return err
		}
		fs.leaveScope()
		fs.builder.EmitJump(bytecode.Jump, end)
		fs.builder.BindLabel(next)
	}
	if n.Default != nil {
		fs.enterScope()
		if err := e.emitStmtList(fs, n.Default); err != nil {
			return err
		}
		fs.leaveScope()
	}
	fs.builder.BindLabel(end)
	return nil
}

func (e *Emitter) emitLoopStmt(fs *FunctionState, n *ast.Loop) error {
	switch n.Kind {
	case ast.LoopWhile:
		return e.emitWhileLoop(fs, n)
	case ast.LoopInfinite:
		return e.emitInfiniteLoop(fs, n)
	case ast.LoopForRange:
		return e.emitForRangeLoop(fs, n)
	default:
		return e.errf(n.Span(), "emit: unknown loop kind %v", n.Kind)
	}
}

func (e *Emitter) emitWhileLoop(fs *FunctionState, n *ast.Loop) error {
	start := fs.builder.NewLabel()
	end := fs.builder.NewLabel()

	fs.enterScope()
	fs.builder.BindLabel(start)
	if err := e.emitExpr(fs, n.Cond); err != nil {
		return err
	}
	fs.builder.EmitJump(bytecode.JumpIfFalse, end)

	prev := fs.currentLoop
	fs.currentLoop = &loopCtx{headerLabel: start, endLabel: end}
	if err := e.emitStmtList(fs, n.Body); err != nil {
		return err
	}
	fs.currentLoop = prev

	fs.builder.EmitJump(bytecode.JumpLoop, start)
	fs.builder.BindLabel(end)
	fs.leaveScope()
	return nil
}

func (e *Emitter) emitInfiniteLoop(fs *FunctionState, n *ast.Loop) error {
	start := fs.builder.NewLabel()
	end := fs.builder.NewLabel()

	fs.enterScope()
	fs.builder.BindLabel(start)

	prev := fs.currentLoop
	fs.currentLoop = &loopCtx{headerLabel: start, endLabel: end}
	if err := e.emitStmtList(fs, n.Body); err != nil {
		return err
	}
	fs.currentLoop = prev

	fs.builder.EmitJump(bytecode.JumpLoop, start)
	fs.builder.BindLabel(end)
	fs.leaveScope()
	return nil
}

// emitForRangeLoop desugars `for item in start..end`/`..=end` into two
// dedicated registers (current, bound), testing with CmpLt/CmpLe and
// incrementing by 1 at the latch (spec §4.5.5).
func (e *Emitter) emitForRangeLoop(fs *FunctionState, n *ast.Loop) error {
	fs.enterScope()

	itemReg := fs.regs.Alloc()
	endReg := fs.regs.Alloc()

	if err := e.emitExpr(fs, n.RangeStart); err != nil {
		return err
	}
	fs.builder.Emit(bytecode.Store, uint32(itemReg))

	if err := e.emitExpr(fs, n.RangeEnd); err != nil {
		return err
	}
	fs.builder.Emit(bytecode.Store, uint32(endReg))

	fs.declareLocal(n.Item, itemReg)

	cond := fs.builder.NewLabel()
	latch := fs.builder.NewLabel()
	end := fs.builder.NewLabel()

	fs.builder.BindLabel(cond)
	fs.regs.Access(endReg)
	fs.builder.Emit(bytecode.Load, uint32(endReg))
	fs.regs.Access(itemReg)
	if n.Inclusive {
		fs.builder.Emit(bytecode.CmpLe, uint32(itemReg))
	} else {
		fs.builder.Emit(bytecode.CmpLt, uint32(itemReg))
	}
	fs.builder.EmitJump(bytecode.JumpIfFalse, end)

	prev := fs.currentLoop
	fs.currentLoop = &loopCtx{headerLabel: latch, endLabel: end}
	if err := e.emitStmtList(fs, n.Body); err != nil {
		return err
	}
	fs.currentLoop = prev

	fs.builder.BindLabel(latch)
	fs.builder.Emit(bytecode.LoadSmi, uint32(uint16(1)))
	fs.regs.Access(itemReg)
	fs.builder.Emit(bytecode.Add, uint32(itemReg))
	fs.builder.Emit(bytecode.Store, uint32(itemReg))
	fs.builder.EmitJump(bytecode.JumpLoop, cond)

	fs.builder.BindLabel(end)
	fs.leaveScope()
	return nil
}

func (e *Emitter) emitCtrlStmt(fs *FunctionState, n *ast.Ctrl) error {
	switch n.Kind {
	case ast.CtrlReturn:
		if n.Value != nil {
			if err := e.emitExpr(fs, n.Value); err != nil {
				return err
			}
		} else {
			fs.builder.Emit(bytecode.LoadNone)
		}
		fs.builder.Emit(bytecode.Return)
	case ast.CtrlYield:
		if n.Value != nil {
			if err := e.emitExpr(fs, n.Value); err != nil {
				return err
			}
		} else {
			fs.builder.Emit(bytecode.LoadNone)
		}
		fs.builder.Emit(bytecode.Yield)
	case ast.CtrlBreak:
		if fs.currentLoop == nil {
			return e.errf(n.Span(), "emit: break used outside of a loop")
		}
		fs.builder.EmitJump(bytecode.Jump, fs.currentLoop.endLabel)
	case ast.CtrlContinue:
		if fs.currentLoop == nil {
			return e.errf(n.Span(), "emit: continue used outside of a loop")
		}
		fs.builder.EmitJump(bytecode.JumpLoop, fs.currentLoop.headerLabel)
	}
	return nil
}

func (e *Emitter) emitFuncStmt(fs *FunctionState, n *ast.Func) error {
	if err := e.emitClosureLiteral(fs, n.Name, n.Params, n.HasSelf, n.Body, n.Span()); err != nil {
		return err
	}
	e.bindName(fs, n.Name)
	return nil
}

func (e *Emitter) emitClassStmt(fs *FunctionState, n *ast.Class) error {
	if err := e.emitClassDecl(fs, n); err != nil {
		return err
	}
	e.bindName(fs, n.Name)
	return nil
}

func (e *Emitter) emitPrintStmt(fs *FunctionState, n *ast.Print) error {
	switch len(n.Values) {
	case 0:
		return nil
	case 1:
		if err := e.emitExpr(fs, n.Values[0]); err != nil {
			return err
		}
		fs.builder.Emit(bytecode.Print)
	default:
		window := fs.regs.AllocWindow(len(n.Values))
		for i, v := range n.Values {
			if err := e.emitExpr(fs, v); err != nil {
				return err
			}
			fs.builder.Emit(bytecode.Store, uint32(window[i]))
		}
		fs.builder.Emit(bytecode.PrintN, uint32(window[0]), uint32(len(window)))
	}
	return nil
}

// emitImportStmt binds the imported name to none: a host module
// loader is outside this core's scope (spec §1's non-goals), but the
// statement still needs to introduce its binding so later references
// resolve instead of falling through to a global lookup.
func (e *Emitter) emitImportStmt(fs *FunctionState, n *ast.Import) error {
	name := n.Alias
	if name == "" {
		name = n.Path
	}
	fs.builder.Emit(bytecode.LoadNone)
	e.bindName(fs, name)
	return nil
}
