package syntax

import (
	"fmt"

	"github.com/mulang-project/mulang/ast"
	"github.com/mulang-project/mulang/vmerr"
)

// Parser is a recursive-descent parser over a token stream produced
// by Lex. Precedence climbing mirrors the original grammar's
// arithmetic/comparison/logical layering (lowest to highest: or, and,
// ??, equality, comparison, additive, multiplicative, power, unary,
// postfix, primary); the original's own precedence table was not
// retrieved (only its parser *tests* were, per _INDEX.md), so this
// order follows the conventional one the sample programs in
// crates/syntax/src/parser/tests.rs are consistent with.
type Parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses src into a Module.
func Parse(src string) (*ast.Module, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseModule()
}

func (p *Parser) peek() Token  { return p.toks[p.pos] }
func (p *Parser) at(k TokKind) bool { return p.peek().Kind == k }

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k TokKind) (Token, error) {
	if !p.at(k) {
		return Token{}, fmt.Errorf("syntax: expected token %v, found %v at offset %d", k, p.peek().Kind, p.peek().Start)
	}
	return p.advance(), nil
}

func (p *Parser) span(start Token) vmerr.Span {
	end := p.toks[p.pos].Start
	if p.pos > 0 {
		end = p.toks[p.pos-1].End
	}
	return vmerr.Span{Start: start.Start, End: end}
}

func (p *Parser) skipNewlines() {
	for p.at(TNewline) {
		p.advance()
	}
}

func (p *Parser) parseModule() (*ast.Module, error) {
	p.skipNewlines()
	body, err := p.parseStmtList(TEOF)
	if err != nil {
		return nil, err
	}
	return &ast.Module{Body: body}, nil
}

// parseStmtList parses statements until the given terminator token
// kind (TDedent for a nested block, TEOF for the module root).
func (p *Parser) parseStmtList(terminator TokKind) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for {
		p.skipNewlines()
		if p.at(terminator) {
			break
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// parseBlock parses `: NEWLINE INDENT stmt* DEDENT`, the off-side-rule
// block shape every compound statement shares.
func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(TColon); err != nil {
		return nil, err
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	if _, err := p.expect(TIndent); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList(TDedent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TDedent); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.peek().Kind {
	case TLet:
		return p.parseLet()
	case TIf:
		return p.parseIf()
	case TWhile:
		return p.parseWhile()
	case TLoop:
		return p.parseLoop()
	case TFor:
		return p.parseFor()
	case TBreak:
		t := p.advance()
		_, err := p.expect(TNewline)
		return ast.NewBreak(p.span(t)), err
	case TContinue:
		t := p.advance()
		_, err := p.expect(TNewline)
		return ast.NewContinue(p.span(t)), err
	case TReturn:
		return p.parseReturnOrYield(false)
	case TYield:
		return p.parseReturnOrYield(true)
	case TFn:
		return p.parseFn()
	case TClass:
		return p.parseClass()
	case TPrint:
		return p.parsePrint()
	case TPass:
		t := p.advance()
		_, err := p.expect(TNewline)
		return ast.NewPass(p.span(t)), err
	case TImport:
		return p.parseImport()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	start := p.advance() // `let`
	name, err := p.expect(TIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TEq); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	return ast.NewVar(p.span(start), name.Text, value), nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	start := p.advance() // `if`
	var branches []ast.IfBranch
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	branches = append(branches, ast.IfBranch{Cond: cond, Body: body})

	for p.at(TElif) {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		branches = append(branches, ast.IfBranch{Cond: cond, Body: body})
	}

	var deflt []ast.Stmt
	if p.at(TElse) {
		p.advance()
		deflt, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewIf(p.span(start), branches, deflt), nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	start := p.advance() // `while`
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewWhileLoop(p.span(start), cond, body), nil
}

func (p *Parser) parseLoop() (ast.Stmt, error) {
	start := p.advance() // `loop`
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewInfiniteLoop(p.span(start), body), nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	start := p.advance() // `for`
	item, err := p.expect(TIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TIn); err != nil {
		return nil, err
	}
	rangeStart, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	inclusive := false
	switch p.peek().Kind {
	case TDotDot:
		p.advance()
	case TDotDotEq:
		inclusive = true
		p.advance()
	default:
		return nil, fmt.Errorf("syntax: expected '..' or '..=' in for-range at offset %d", p.peek().Start)
	}
	rangeEnd, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewForRangeLoop(p.span(start), item.Text, rangeStart, rangeEnd, inclusive, body), nil
}

func (p *Parser) parseReturnOrYield(yield bool) (ast.Stmt, error) {
	start := p.advance() // `return`/`yield`
	var value ast.Expr
	if !p.at(TNewline) {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		value = v
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	if yield {
		return ast.NewYield(p.span(start), value), nil
	}
	return ast.NewReturn(p.span(start), value), nil
}

func (p *Parser) parseParams() ([]ast.Param, bool, error) {
	if _, err := p.expect(TLParen); err != nil {
		return nil, false, err
	}
	var params []ast.Param
	hasSelf := false
	first := true
	for !p.at(TRParen) {
		if !first {
			if _, err := p.expect(TComma); err != nil {
				return nil, false, err
			}
		}
		name, err := p.expect(TIdent)
		if err != nil {
			return nil, false, err
		}
		if first && name.Text == "self" {
			hasSelf = true
		} else {
			params = append(params, ast.Param{Name: name.Text})
		}
		first = false
	}
	if _, err := p.expect(TRParen); err != nil {
		return nil, false, err
	}
	return params, hasSelf, nil
}

func (p *Parser) parseFn() (*ast.Func, error) {
	start := p.advance() // `fn`
	name, err := p.expect(TIdent)
	if err != nil {
		return nil, err
	}
	params, hasSelf, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewFunc(p.span(start), name.Text, params, hasSelf, body), nil
}

func (p *Parser) parseClass() (ast.Stmt, error) {
	start := p.advance() // `class`
	name, err := p.expect(TIdent)
	if err != nil {
		return nil, err
	}
	parent := ""
	if p.at(TLParen) {
		p.advance()
		parentTok, err := p.expect(TIdent)
		if err != nil {
			return nil, err
		}
		parent = parentTok.Text
		if _, err := p.expect(TRParen); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(TColon); err != nil {
		return nil, err
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	if _, err := p.expect(TIndent); err != nil {
		return nil, err
	}

	var fields []string
	var methods []*ast.Func
	for {
		p.skipNewlines()
		if p.at(TDedent) {
			break
		}
		if p.at(TFn) {
			m, err := p.parseFn()
			if err != nil {
				return nil, err
			}
			methods = append(methods, m)
			continue
		}
		if p.at(TPass) {
			p.advance()
			if _, err := p.expect(TNewline); err != nil {
				return nil, err
			}
			continue
		}
		field, err := p.expect(TIdent)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field.Text)
		if _, err := p.expect(TNewline); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TDedent); err != nil {
		return nil, err
	}
	return ast.NewClass(p.span(start), name.Text, parent, fields, methods), nil
}

func (p *Parser) parsePrint() (ast.Stmt, error) {
	start := p.advance() // `print`
	var values []ast.Expr
	if !p.at(TNewline) {
		for {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if !p.at(TComma) {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	return ast.NewPrint(p.span(start), values), nil
}

func (p *Parser) parseImport() (ast.Stmt, error) {
	start := p.advance() // `import`
	path, err := p.expect(TIdent)
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.at(TAs) {
		p.advance()
		aliasTok, err := p.expect(TIdent)
		if err != nil {
			return nil, err
		}
		alias = aliasTok.Text
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	return ast.NewImport(p.span(start), path.Text, alias), nil
}

// parseExprOrAssignStmt parses a bare expression statement, promoting
// it to a Set{Var,Field,Index} expression statement when followed by
// `=` (spec §6's Expr kinds double as assignment targets: GetVar
// becomes SetVar, and so on, the same lvalue-reinterpretation the
// original compiler's emit/stmt.rs performs).
func (p *Parser) parseExprOrAssignStmt() (ast.Stmt, error) {
	start := p.peek()
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(TEq) {
		p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assign, err := toAssignment(p.span(start), lhs, rhs)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TNewline); err != nil {
			return nil, err
		}
		return ast.NewExprStmt(p.span(start), assign), nil
	}
	if _, err := p.expect(TNewline); err != nil {
		return nil, err
	}
	return ast.NewExprStmt(p.span(start), lhs), nil
}

func toAssignment(span vmerr.Span, lhs, rhs ast.Expr) (ast.Expr, error) {
	switch n := lhs.(type) {
	case *ast.GetVar:
		return ast.NewSetVar(span, n.Name, rhs), nil
	case *ast.GetField:
		return ast.NewSetField(span, n.Target, n.Name, rhs), nil
	case *ast.GetIndex:
		return ast.NewSetIndex(span, n.Target, n.Key, rhs), nil
	default:
		return nil, fmt.Errorf("syntax: invalid assignment target at offset %d", span.Start)
	}
}

// ---- Expressions ----

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TOr) {
		t := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), ast.OpOr, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	for p.at(TAnd) {
		t := p.advance()
		right, err := p.parseCoalesce()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), ast.OpAnd, left, right)
	}
	return left, nil
}

func (p *Parser) parseCoalesce() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(TQQ) {
		t := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), ast.OpCoalesce, left, right)
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(TEqEq) || p.at(TNotEq) {
		t := p.advance()
		op := ast.OpEq
		if t.Kind == TNotEq {
			op = ast.OpNe
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), op, left, right)
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(TGt) || p.at(TGe) || p.at(TLt) || p.at(TLe) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case TGt:
			op = ast.OpGt
		case TGe:
			op = ast.OpGe
		case TLt:
			op = ast.OpLt
		case TLe:
			op = ast.OpLe
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), op, left, right)
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TPlus) || p.at(TMinus) {
		t := p.advance()
		op := ast.OpAdd
		if t.Kind == TMinus {
			op = ast.OpSub
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), op, left, right)
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.at(TStar) || p.at(TSlash) || p.at(TPercent) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case TStar:
			op = ast.OpMul
		case TSlash:
			op = ast.OpDiv
		case TPercent:
			op = ast.OpRem
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(t), op, left, right)
	}
	return left, nil
}

// parsePower is right-associative: `2 ** 3 ** 2` is `2 ** (3 ** 2)`.
func (p *Parser) parsePower() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.at(TStarStar) {
		t := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return ast.NewBinary(p.span(t), ast.OpPow, left, right), nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.at(TMinus) {
		t := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(p.span(t), ast.OpNeg, operand), nil
	}
	if p.at(TBang) {
		t := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(p.span(t), ast.OpNot, operand), nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Kind {
		case TDot:
			t := p.advance()
			name, err := p.expect(TIdent)
			if err != nil {
				return nil, err
			}
			expr = ast.NewGetField(p.span(t), expr, name.Text, false)
		case TQDot:
			t := p.advance()
			name, err := p.expect(TIdent)
			if err != nil {
				return nil, err
			}
			expr = ast.NewGetField(p.span(t), expr, name.Text, true)
		case TLParen:
			t := p.advance()
			var args []ast.Expr
			for !p.at(TRParen) {
				if len(args) > 0 {
					if _, err := p.expect(TComma); err != nil {
						return nil, err
					}
				}
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
			}
			if _, err := p.expect(TRParen); err != nil {
				return nil, err
			}
			expr = ast.NewCall(p.span(t), expr, args)
		case TLBrack:
			t := p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TRBrack); err != nil {
				return nil, err
			}
			expr = ast.NewGetIndex(p.span(t), expr, key)
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TInt:
		p.advance()
		return ast.NewIntLit(p.span(t), t.IVal), nil
	case TFloat:
		p.advance()
		return ast.NewFloatLit(p.span(t), t.FVal), nil
	case TString:
		p.advance()
		return ast.NewStrLit(p.span(t), t.Text), nil
	case TTrue:
		p.advance()
		return ast.NewBoolLit(p.span(t), true), nil
	case TFalse:
		p.advance()
		return ast.NewBoolLit(p.span(t), false), nil
	case TNone:
		p.advance()
		return ast.NewNoneLit(p.span(t)), nil
	case TSuper:
		p.advance()
		return ast.NewSuper(p.span(t)), nil
	case TIdent:
		p.advance()
		return ast.NewGetVar(p.span(t), t.Text), nil
	case TFn:
		return p.parseFuncExpr()
	case TLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case TLBrack:
		return p.parseListExpr()
	case TLBrace:
		return p.parseDictExpr()
	default:
		return nil, fmt.Errorf("syntax: unexpected token %v at offset %d", t.Kind, t.Start)
	}
}

func (p *Parser) parseFuncExpr() (ast.Expr, error) {
	start := p.advance() // `fn`
	params, hasSelf, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewFuncExpr(p.span(start), params, hasSelf, body), nil
}

func (p *Parser) parseListExpr() (ast.Expr, error) {
	start := p.advance() // `[`
	var items []ast.Expr
	for !p.at(TRBrack) {
		if len(items) > 0 {
			if _, err := p.expect(TComma); err != nil {
				return nil, err
			}
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if _, err := p.expect(TRBrack); err != nil {
		return nil, err
	}
	return ast.NewListExpr(p.span(start), items), nil
}

func (p *Parser) parseDictExpr() (ast.Expr, error) {
	start := p.advance() // `{`
	var entries []ast.DictEntry
	for !p.at(TRBrace) {
		if len(entries) > 0 {
			if _, err := p.expect(TComma); err != nil {
				return nil, err
			}
		}
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TColon); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.DictEntry{Key: key, Value: value})
	}
	if _, err := p.expect(TRBrace); err != nil {
		return nil, err
	}
	return ast.NewDictExpr(p.span(start), entries), nil
}
