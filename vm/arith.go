package vm

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/value"
	"github.com/mulang-project/mulang/vmerr"
)

// compareOrdered mirrors the teacher's compare[T numeric32]
// (vm/vm.go:344): a generic three-way comparison, here widened from
// the teacher's fixed numeric32 constraint to constraints.Ordered so
// it also covers the float64/string pairs compareOrd below needs,
// and returning a plain -1/0/1 int instead of the teacher's
// wrapped-uint32 encoding since nothing downstream needs that packing.
func compareOrdered[T constraints.Ordered](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func numericFloat(v value.Value) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	return 0, false
}

func (vm *Isolate) asStr(v value.Value) (string, bool) {
	obj, ok := vm.Heap.From(v)
	if !ok {
		return "", false
	}
	s, ok := obj.(*object.Str)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// binaryOp implements Add/Sub/Mul/Div/Rem/Pow's numeric coercion rule
// (spec §4.6.2): int op int stays int unless the result overflows (or,
// for Div, is not exact), in which case it promotes to float; mixed
// int/float promotes to float; Add additionally concatenates strings.
func (vm *Isolate) binaryOp(op bytecode.Op, lhs, rhs value.Value, span vmerr.Span) (value.Value, error) {
	if op == bytecode.Add {
		if ls, ok := vm.asStr(lhs); ok {
			if rs, ok := vm.asStr(rhs); ok {
				return vm.Heap.Alloc(object.NewStr(ls + rs)), nil
			}
		}
	}

	if li, lok := lhs.AsInt(); lok {
		if ri, rok := rhs.AsInt(); rok {
			return intBinaryOp(op, li, ri, span)
		}
	}

	lf, lok := numericFloat(lhs)
	rf, rok := numericFloat(rhs)
	if lok && rok {
		return floatBinaryOp(op, lf, rf, span)
	}

	return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "unsupported operand types for %s", op)
}

func intBinaryOp(op bytecode.Op, li, ri int32, span vmerr.Span) (value.Value, error) {
	const minI32, maxI32 = math.MinInt32, math.MaxInt32
	switch op {
	case bytecode.Add:
		sum := int64(li) + int64(ri)
		if sum < minI32 || sum > maxI32 {
			return value.Float(float64(sum)), nil
		}
		return value.Int(int32(sum)), nil
	case bytecode.Sub:
		diff := int64(li) - int64(ri)
		if diff < minI32 || diff > maxI32 {
			return value.Float(float64(diff)), nil
		}
		return value.Int(int32(diff)), nil
	case bytecode.Mul:
		prod := int64(li) * int64(ri)
		if prod < minI32 || prod > maxI32 {
			return value.Float(float64(prod)), nil
		}
		return value.Int(int32(prod)), nil
	case bytecode.Div:
		if ri == 0 {
			return value.Value{}, vmerr.New(vmerr.ErrRuntimeError, span, "division by zero")
		}
		if li%ri == 0 && !(li == minI32 && ri == -1) {
			return value.Int(li / ri), nil
		}
		return value.Float(float64(li) / float64(ri)), nil
	case bytecode.Rem:
		if ri == 0 {
			return value.Value{}, vmerr.New(vmerr.ErrRuntimeError, span, "division by zero")
		}
		return value.Int(li % ri), nil
	case bytecode.Pow:
		if ri < 0 {
			return value.Float(math.Pow(float64(li), float64(ri))), nil
		}
		result := int64(1)
		base := int64(li)
		overflowed := false
		for e := int32(0); e < ri; e++ {
			result *= base
			if result < minI32 || result > maxI32 {
				overflowed = true
			}
		}
		if overflowed {
			return value.Float(math.Pow(float64(li), float64(ri))), nil
		}
		return value.Int(int32(result)), nil
	default:
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "unsupported integer operator %s", op)
	}
}

func floatBinaryOp(op bytecode.Op, lf, rf float64, span vmerr.Span) (value.Value, error) {
	switch op {
	case bytecode.Add:
		return value.Float(lf + rf), nil
	case bytecode.Sub:
		return value.Float(lf - rf), nil
	case bytecode.Mul:
		return value.Float(lf * rf), nil
	case bytecode.Div:
		if rf == 0 {
			return value.Value{}, vmerr.New(vmerr.ErrRuntimeError, span, "division by zero")
		}
		return value.Float(lf / rf), nil
	case bytecode.Rem:
		if rf == 0 {
			return value.Value{}, vmerr.New(vmerr.ErrRuntimeError, span, "division by zero")
		}
		return value.Float(math.Mod(lf, rf)), nil
	case bytecode.Pow:
		return value.Float(math.Pow(lf, rf)), nil
	default:
		return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "unsupported float operator %s", op)
	}
}

// compareEq implements CmpEq/CmpNe's rule: numeric values compare
// across kinds, strings compare by content, everything else falls
// back to Value's bit-identity rule (spec §4.6.2, §3.1).
func (vm *Isolate) compareEq(a, b value.Value) bool {
	if af, aok := numericFloat(a); aok {
		if bf, bok := numericFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, aok := vm.asStr(a); aok {
		if bs, bok := vm.asStr(b); bok {
			return as == bs
		}
		return false
	}
	return value.Equal(a, b)
}

// compareOrd implements CmpGt/Ge/Lt/Le's partial order: numeric
// cross-kind comparison, lexicographic string comparison, or a
// TypeError for anything else (spec §4.6.2).
func (vm *Isolate) compareOrd(a, b value.Value, span vmerr.Span) (int, error) {
	if af, aok := numericFloat(a); aok {
		if bf, bok := numericFloat(b); bok {
			return compareOrdered(af, bf), nil
		}
	}
	if as, aok := vm.asStr(a); aok {
		if bs, bok := vm.asStr(b); bok {
			return compareOrdered(as, bs), nil
		}
	}
	return 0, vmerr.New(vmerr.ErrTypeError, span, "values are not orderable")
}

// truthy bridges value.Value.Truthy (which has no heap access) to the
// object heap, so a Str object's emptiness can be consulted (spec
// §4.6.2 "none/false/0/empty are falsy").
func (vm *Isolate) truthy(v value.Value) bool {
	return v.Truthy(func(h value.Handle) (empty bool, isStr bool) {
		obj := vm.Heap.Object(h)
		s, ok := obj.(*object.Str)
		if !ok {
			return false, false
		}
		return s.Len() == 0, true
	})
}

func (vm *Isolate) negate(v value.Value, span vmerr.Span) (value.Value, error) {
	if i, ok := v.AsInt(); ok {
		return value.Int(-i), nil
	}
	if f, ok := v.AsFloat(); ok {
		return value.Float(-f), nil
	}
	return value.Value{}, vmerr.New(vmerr.ErrTypeError, span, "unary minus applied to a non-numeric value")
}
