// Package ast defines the syntax tree the emitter walks. It mirrors
// the statement/expression split the original language's compiler
// uses (Stmt/StmtKind, Expr/ExprKind), adapted to Go's interface-based
// sum-type idiom instead of Rust's enum-with-payload shape.
package ast

import "github.com/mulang-project/mulang/vmerr"

// Stmt is any statement node. Each concrete kind below implements it
// as a marker, the same role ast::StmtKind's match arms play.
type Stmt interface {
	stmtNode()
	Span() vmerr.Span
}

// Expr is any expression node.
type Expr interface {
	exprNode()
	Span() vmerr.Span
}

type base struct{ span vmerr.Span }

func (b base) Span() vmerr.Span { return b.span }

// ---- Statements ----

// Var is a `let name = value` declaration.
type Var struct {
	base
	Name  string
	Value Expr
}

func (*Var) stmtNode() {}

// NewVar constructs a Var statement.
func NewVar(span vmerr.Span, name string, value Expr) *Var {
	return &Var{base: base{span}, Name: name, Value: value}
}

// IfBranch is one `if`/`elif` arm.
type IfBranch struct {
	Cond Expr
	Body []Stmt
}

// If is an if/elif/else chain; Default is nil when there is no else.
type If struct {
	base
	Branches []IfBranch
	Default  []Stmt
}

func (*If) stmtNode() {}

// NewIf constructs an If statement.
func NewIf(span vmerr.Span, branches []IfBranch, deflt []Stmt) *If {
	return &If{base: base{span}, Branches: branches, Default: deflt}
}

// LoopKind distinguishes the three loop statement shapes (spec §6
// "Loop::{For,While,Infinite}").
type LoopKind int

const (
	LoopWhile LoopKind = iota
	LoopInfinite
	LoopForRange
)

// Loop is a loop statement of one of the three LoopKind shapes.
type Loop struct {
	base
	Kind LoopKind

	// While
	Cond Expr

	// ForRange
	Item        string
	RangeStart  Expr
	RangeEnd    Expr
	Inclusive   bool

	Body []Stmt
}

func (*Loop) stmtNode() {}

// NewWhileLoop constructs a while loop.
func NewWhileLoop(span vmerr.Span, cond Expr, body []Stmt) *Loop {
	return &Loop{base: base{span}, Kind: LoopWhile, Cond: cond, Body: body}
}

// NewInfiniteLoop constructs an unconditional loop.
func NewInfiniteLoop(span vmerr.Span, body []Stmt) *Loop {
	return &Loop{base: base{span}, Kind: LoopInfinite, Body: body}
}

// NewForRangeLoop constructs a `for item in start..end` loop.
func NewForRangeLoop(span vmerr.Span, item string, start, end Expr, inclusive bool, body []Stmt) *Loop {
	return &Loop{base: base{span}, Kind: LoopForRange, Item: item, RangeStart: start, RangeEnd: end, Inclusive: inclusive, Body: body}
}

// CtrlKind distinguishes the control-transfer statement shapes (spec
// §6 "Ctrl::{Return,Yield,Break,Continue}").
type CtrlKind int

const (
	CtrlReturn CtrlKind = iota
	CtrlYield
	CtrlBreak
	CtrlContinue
)

// Ctrl is a return/yield/break/continue statement. Value is nil for
// a bare return/yield and for break/continue (which never carry one).
type Ctrl struct {
	base
	Kind  CtrlKind
	Value Expr
}

func (*Ctrl) stmtNode() {}

// NewReturn constructs a return statement; value may be nil.
func NewReturn(span vmerr.Span, value Expr) *Ctrl {
	return &Ctrl{base: base{span}, Kind: CtrlReturn, Value: value}
}

// NewYield constructs a yield statement; value may be nil.
func NewYield(span vmerr.Span, value Expr) *Ctrl {
	return &Ctrl{base: base{span}, Kind: CtrlYield, Value: value}
}

// NewBreak constructs a break statement.
func NewBreak(span vmerr.Span) *Ctrl { return &Ctrl{base: base{span}, Kind: CtrlBreak} }

// NewContinue constructs a continue statement.
func NewContinue(span vmerr.Span) *Ctrl { return &Ctrl{base: base{span}, Kind: CtrlContinue} }

// Param is one parameter in a function or method signature.
type Param struct {
	Name string
}

// Func is a function declaration statement: `fn name(params):` followed
// by an indented body.
type Func struct {
	base
	Name    string
	Params  []Param
	HasSelf bool
	Body    []Stmt
}

func (*Func) stmtNode() {}

// NewFunc constructs a function declaration.
func NewFunc(span vmerr.Span, name string, params []Param, hasSelf bool, body []Stmt) *Func {
	return &Func{base: base{span}, Name: name, Params: params, HasSelf: hasSelf, Body: body}
}

// Class is a class declaration statement: `class Name(Parent):` followed
// by an indented block of fields and methods.
// Parent is empty when the class has no declared parent.
type Class struct {
	base
	Name    string
	Parent  string
	Fields  []string
	Methods []*Func
}

func (*Class) stmtNode() {}

// NewClass constructs a class declaration.
func NewClass(span vmerr.Span, name, parent string, fields []string, methods []*Func) *Class {
	return &Class{base: base{span}, Name: name, Parent: parent, Fields: fields, Methods: methods}
}

// ExprStmt wraps a bare expression used for its side effect.
type ExprStmt struct {
	base
	Value Expr
}

func (*ExprStmt) stmtNode() {}

// NewExprStmt constructs an expression statement.
func NewExprStmt(span vmerr.Span, value Expr) *ExprStmt {
	return &ExprStmt{base: base{span}, Value: value}
}

// Pass is a no-op placeholder statement.
type Pass struct{ base }

func (*Pass) stmtNode() {}

// NewPass constructs a Pass statement.
func NewPass(span vmerr.Span) *Pass { return &Pass{base{span}} }

// Print is a `print a, b, c` statement.
type Print struct {
	base
	Values []Expr
}

func (*Print) stmtNode() {}

// NewPrint constructs a Print statement.
func NewPrint(span vmerr.Span, values []Expr) *Print {
	return &Print{base: base{span}, Values: values}
}

// Import is a module import statement: `import name` or
// `import name as alias`.
type Import struct {
	base
	Path  string
	Alias string
}

func (*Import) stmtNode() {}

// NewImport constructs an Import statement.
func NewImport(span vmerr.Span, path, alias string) *Import {
	return &Import{base: base{span}, Path: path, Alias: alias}
}

// ---- Expressions ----

// LiteralKind distinguishes the literal expression shapes.
type LiteralKind int

const (
	LitFloat LiteralKind = iota
	LitInt
	LitBool
	LitNone
	LitStr
)

// Literal is a constant expression.
type Literal struct {
	base
	Kind  LiteralKind
	Float float64
	Int   int32
	Bool  bool
	Str   string
}

func (*Literal) exprNode() {}

// NewFloatLit, NewIntLit, NewBoolLit, NewNoneLit and NewStrLit
// construct the five literal kinds.
func NewFloatLit(span vmerr.Span, f float64) *Literal { return &Literal{base: base{span}, Kind: LitFloat, Float: f} }
func NewIntLit(span vmerr.Span, i int32) *Literal      { return &Literal{base: base{span}, Kind: LitInt, Int: i} }
func NewBoolLit(span vmerr.Span, b bool) *Literal      { return &Literal{base: base{span}, Kind: LitBool, Bool: b} }
func NewNoneLit(span vmerr.Span) *Literal              { return &Literal{base: base{span}, Kind: LitNone} }
func NewStrLit(span vmerr.Span, s string) *Literal     { return &Literal{base: base{span}, Kind: LitStr, Str: s} }

// BinOp enumerates binary operators.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpPow
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
	OpCoalesce
)

// Binary is a binary expression.
type Binary struct {
	base
	Op    BinOp
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// NewBinary constructs a binary expression.
func NewBinary(span vmerr.Span, op BinOp, left, right Expr) *Binary {
	return &Binary{base: base{span}, Op: op, Left: left, Right: right}
}

// UnOp enumerates unary operators.
type UnOp int

const (
	OpNeg UnOp = iota
	OpNot
)

// Unary is a unary expression.
type Unary struct {
	base
	Op      UnOp
	Operand Expr
}

func (*Unary) exprNode() {}

// NewUnary constructs a unary expression.
func NewUnary(span vmerr.Span, op UnOp, operand Expr) *Unary {
	return &Unary{base: base{span}, Op: op, Operand: operand}
}

// Block is a statement sequence used as an
// expression (e.g. a function literal's body, or an if-expression's
// arm), producing the value of its last expression statement.
type Block struct {
	base
	Body []Stmt
}

func (*Block) exprNode() {}

// NewBlock constructs a Block expression.
func NewBlock(span vmerr.Span, body []Stmt) *Block { return &Block{base: base{span}, Body: body} }

// IfExpr is an if-expression (if cond, then a, else b), distinct
// from the If statement in that every arm must produce a value.
type IfExprBranch struct {
	Cond Expr
	Body Expr
}

type IfExpr struct {
	base
	Branches []IfExprBranch
	Default  Expr
}

func (*IfExpr) exprNode() {}

// NewIfExpr constructs an if-expression.
func NewIfExpr(span vmerr.Span, branches []IfExprBranch, deflt Expr) *IfExpr {
	return &IfExpr{base: base{span}, Branches: branches, Default: deflt}
}

// FuncExpr is an anonymous function literal.
type FuncExpr struct {
	base
	Params  []Param
	HasSelf bool
	Body    []Stmt
}

func (*FuncExpr) exprNode() {}

// NewFuncExpr constructs a function-literal expression.
func NewFuncExpr(span vmerr.Span, params []Param, hasSelf bool, body []Stmt) *FuncExpr {
	return &FuncExpr{base: base{span}, Params: params, HasSelf: hasSelf, Body: body}
}

// GetVar reads a variable by name (local, upvalue, module, or global;
// resolution is the emitter's job, not the parser's).
type GetVar struct {
	base
	Name string
}

func (*GetVar) exprNode() {}

// NewGetVar constructs a variable-read expression.
func NewGetVar(span vmerr.Span, name string) *GetVar { return &GetVar{base: base{span}, Name: name} }

// SetVar assigns to a variable by name.
type SetVar struct {
	base
	Name  string
	Value Expr
}

func (*SetVar) exprNode() {}

// NewSetVar constructs a variable-assignment expression.
func NewSetVar(span vmerr.Span, name string, value Expr) *SetVar {
	return &SetVar{base: base{span}, Name: name, Value: value}
}

// GetField reads `target.name`.
type GetField struct {
	base
	Target   Expr
	Name     string
	Optional bool // `target?.name` short-circuits to none on a none target
}

func (*GetField) exprNode() {}

// NewGetField constructs a field-read expression.
func NewGetField(span vmerr.Span, target Expr, name string, optional bool) *GetField {
	return &GetField{base: base{span}, Target: target, Name: name, Optional: optional}
}

// SetField assigns `target.name = value`.
type SetField struct {
	base
	Target Expr
	Name   string
	Value  Expr
}

func (*SetField) exprNode() {}

// NewSetField constructs a field-assignment expression.
func NewSetField(span vmerr.Span, target Expr, name string, value Expr) *SetField {
	return &SetField{base: base{span}, Target: target, Name: name, Value: value}
}

// GetIndex reads `target[key]`.
type GetIndex struct {
	base
	Target Expr
	Key    Expr
}

func (*GetIndex) exprNode() {}

// NewGetIndex constructs an index-read expression.
func NewGetIndex(span vmerr.Span, target, key Expr) *GetIndex {
	return &GetIndex{base: base{span}, Target: target, Key: key}
}

// SetIndex assigns `target[key] = value`.
type SetIndex struct {
	base
	Target Expr
	Key    Expr
	Value  Expr
}

func (*SetIndex) exprNode() {}

// NewSetIndex constructs an index-assignment expression.
func NewSetIndex(span vmerr.Span, target, key, value Expr) *SetIndex {
	return &SetIndex{base: base{span}, Target: target, Key: key, Value: value}
}

// Call invokes Callee with Args. Callee is typically a GetVar or
// GetField (the latter yielding a bound Method at runtime).
type Call struct {
	base
	Callee Expr
	Args   []Expr
}

func (*Call) exprNode() {}

// NewCall constructs a call expression.
func NewCall(span vmerr.Span, callee Expr, args []Expr) *Call {
	return &Call{base: base{span}, Callee: callee, Args: args}
}

// Super is a `super` reference, valid only inside a method body;
// the emitter resolves it to the enclosing class's parent ClassDef.
type Super struct{ base }

func (*Super) exprNode() {}

// NewSuper constructs a super-reference expression.
func NewSuper(span vmerr.Span) *Super { return &Super{base{span}} }

// ListExpr is a `[a, b, c]` list literal.
type ListExpr struct {
	base
	Items []Expr
}

func (*ListExpr) exprNode() {}

// NewListExpr constructs a list-literal expression.
func NewListExpr(span vmerr.Span, items []Expr) *ListExpr {
	return &ListExpr{base: base{span}, Items: items}
}

// DictEntry is one `key: value` pair in a dict literal.
type DictEntry struct {
	Key   Expr
	Value Expr
}

// DictExpr is a `{k: v, ...}` dict literal.
type DictExpr struct {
	base
	Entries []DictEntry
}

func (*DictExpr) exprNode() {}

// NewDictExpr constructs a dict-literal expression.
func NewDictExpr(span vmerr.Span, entries []DictEntry) *DictExpr {
	return &DictExpr{base: base{span}, Entries: entries}
}

// Module is the root of a parsed program: a flat statement list, the
// same shape the emitter turns into the `__main__` FunctionDescriptor.
type Module struct {
	Body []Stmt
}
