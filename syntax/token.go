// Package syntax is a small indentation-sensitive lexer and recursive-
// descent parser that turns source text into the ast.Module tree the
// emitter consumes. It is deliberately not part of the core: spec §1
// treats the lexer/parser as an external collaborator, specified only
// at the AST boundary in §6. This package exists so the CLI driver
// (cmd/mulang) and the end-to-end tests have something to feed text
// programs through; its grammar decisions (the `:`-then-indent block
// rule, the multi-line-continuation heuristic) follow
// original_source's crates/cli/src/repl.rs and the sample programs in
// crates/syntax/src/parser/tests.rs, translated into Go's idiomatic
// hand-rolled recursive descent instead of the original's `peg` parser
// combinator crate (no PEG-combinator library appears anywhere in the
// retrieved pack).
package syntax

import "fmt"

// TokKind enumerates every lexical token kind this grammar needs.
type TokKind int

const (
	TEOF TokKind = iota
	TNewline
	TIndent
	TDedent

	TIdent
	TInt
	TFloat
	TString

	// Keywords
	TLet
	TIf
	TElif
	TElse
	TWhile
	TLoop
	TFor
	TIn
	TBreak
	TContinue
	TReturn
	TYield
	TFn
	TClass
	TPrint
	TPass
	TImport
	TAs
	TAnd
	TOr
	TTrue
	TFalse
	TNone
	TSuper

	// Punctuation / operators
	TPlus
	TMinus
	TStar
	TSlash
	TPercent
	TStarStar
	TEqEq
	TNotEq
	TGt
	TGe
	TLt
	TLe
	TEq
	TQQ    // ??
	TQDot  // ?.
	TDot
	TComma
	TColon
	TLParen
	TRParen
	TLBrack
	TRBrack
	TLBrace
	TRBrace
	TDotDot
	TDotDotEq
	TBang
)

var keywords = map[string]TokKind{
	"let":      TLet,
	"if":       TIf,
	"elif":     TElif,
	"else":     TElse,
	"while":    TWhile,
	"loop":     TLoop,
	"for":      TFor,
	"in":       TIn,
	"break":    TBreak,
	"continue": TContinue,
	"return":   TReturn,
	"yield":    TYield,
	"fn":       TFn,
	"class":    TClass,
	"print":    TPrint,
	"pass":     TPass,
	"import":   TImport,
	"as":       TAs,
	"and":      TAnd,
	"or":       TOr,
	"true":     TTrue,
	"false":    TFalse,
	"none":     TNone,
	"super":    TSuper,
}

// Token is one lexed token with its byte-offset span into the source.
type Token struct {
	Kind  TokKind
	Text  string
	IVal  int32
	FVal  float64
	Start uint32
	End   uint32
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)@%d", t.Kind, t.Text, t.Start)
}
