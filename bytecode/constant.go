package bytecode

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mulang-project/mulang/value"
)

// ConstKind tags a constant pool entry (spec §4.2).
type ConstKind uint8

const (
	ConstFloat ConstKind = iota
	ConstInt
	ConstStr
	// ConstObject holds an already-heap-allocated object (a nested
	// FunctionDescriptor or ClassDesc). Constants are built once per
	// compilation by the emitter, which has access to the isolate's
	// object heap for exactly this purpose (spec §3.3 "Lifecycle").
	ConstObject
	// ConstJumpOffset is a spillover slot for a jump target that no
	// longer fits any inline operand width (spec §4.1).
	ConstJumpOffset
)

// Constant is one entry of a function's constant pool.
type Constant struct {
	Kind       ConstKind
	Float      float64
	Int        int64
	Str        string
	Object     value.Value
	JumpOffset int64
}

// FloatConst, IntConst, StrConst, ObjectConst and JumpOffsetConst are
// constructors for each kind, kept terse since they are called from
// every literal-compilation site in the emitter.
func FloatConst(f float64) Constant  { return Constant{Kind: ConstFloat, Float: f} }
func IntConst(i int64) Constant      { return Constant{Kind: ConstInt, Int: i} }
func StrConst(s string) Constant     { return Constant{Kind: ConstStr, Str: s} }
func ObjectConst(v value.Value) Constant {
	return Constant{Kind: ConstObject, Object: v}
}
func JumpOffsetConst(offset int64) Constant {
	return Constant{Kind: ConstJumpOffset, JumpOffset: offset}
}

// Equal reports structural equality, used by Pool.Intern to dedupe.
func (c Constant) Equal(other Constant) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case ConstFloat:
		return c.Float == other.Float
	case ConstInt:
		return c.Int == other.Int
	case ConstStr:
		return c.Str == other.Str
	case ConstObject:
		return c.Object.Bits() == other.Object.Bits()
	case ConstJumpOffset:
		return false // spillovers are never deduplicated, each patch site owns its own
	default:
		return false
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstStr:
		return fmt.Sprintf("%q", c.Str)
	case ConstObject:
		return "<object>"
	case ConstJumpOffset:
		return fmt.Sprintf("+%d", c.JumpOffset)
	default:
		return "?const?"
	}
}

// Pool is a per-function vector of interned constants (spec §4.2).
// Interning is by structural equality and returns stable indices.
type Pool struct {
	constants []Constant
}

// NewPool returns an empty constant pool.
func NewPool() *Pool { return &Pool{} }

// Intern returns the index of c, appending it if no structurally
// equal entry already exists. Jump-offset spillovers are never
// deduplicated against each other since each belongs to exactly one
// patch site.
func (p *Pool) Intern(c Constant) int {
	if c.Kind != ConstJumpOffset {
		if _, idx, found := lo.FindIndexOf(p.constants, func(existing Constant) bool { return existing.Equal(c) }); found {
			return idx
		}
	}
	p.constants = append(p.constants, c)
	return len(p.constants) - 1
}

// Get returns the constant at index i.
func (p *Pool) Get(i int) Constant { return p.constants[i] }

// Len returns the number of interned constants.
func (p *Pool) Len() int { return len(p.constants) }

// All returns every interned constant, in index order.
func (p *Pool) All() []Constant { return p.constants }
