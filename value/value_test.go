package value

import (
	"math"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestTagsAreMutuallyExclusive(t *testing.T) {
	vals := []Value{
		Float(1.5),
		Int(42),
		Bool(true),
		Bool(false),
		None(),
		FromHandle(7),
	}
	for _, v := range vals {
		n := 0
		for _, b := range []bool{v.IsFloat(), v.IsInt(), v.IsBool(), v.IsNone(), v.IsObject()} {
			if b {
				n++
			}
		}
		// IsFloat is "not a reserved-tag pattern", so a non-float tag also
		// reports IsFloat() == false by construction; every concrete value
		// above satisfies exactly one of the five predicates.
		assert(t, n == 1, "expected exactly one tag predicate true, got %d for %#v", n, v)
	}
}

func TestReservedNaNPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing Value from reserved QNAN pattern")
		}
	}()
	Float(math.Float64frombits(maskQNAN))
}

func TestIntRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32} {
		v := Int(n)
		got, ok := v.AsInt()
		assert(t, ok, "AsInt should succeed for an Int value")
		assert(t, got == n, "got %d, want %d", got, n)
	}
}

func TestEqualBitEquality(t *testing.T) {
	assert(t, Equal(Int(4), Int(4)), "equal ints should be equal")
	assert(t, !Equal(Int(4), Int(5)), "unequal ints should not be equal")
	assert(t, Equal(Bool(true), Bool(true)), "equal bools should be equal")
	assert(t, Equal(None(), None()), "none should equal none")
}

func TestEqualNaNAndZero(t *testing.T) {
	nan := Float(math.NaN())
	assert(t, Equal(nan, nan), "NaN should equal itself under the value equality rule")

	posZero := Float(0.0)
	negZero := Float(math.Copysign(0, -1))
	assert(t, Equal(posZero, negZero), "+0.0 should equal -0.0")
}

func TestHandleRoundTrip(t *testing.T) {
	v := FromHandle(12345)
	h, ok := v.Handle()
	assert(t, ok, "Handle should succeed for an object value")
	assert(t, h == 12345, "got handle %d, want 12345", h)
}

func TestTruthy(t *testing.T) {
	always := func(Handle) (bool, bool) { return false, false }
	assert(t, !None().Truthy(always), "none should be falsy")
	assert(t, !Bool(false).Truthy(always), "false should be falsy")
	assert(t, Bool(true).Truthy(always), "true should be truthy")
	assert(t, !Int(0).Truthy(always), "int 0 should be falsy")
	assert(t, Int(1).Truthy(always), "int 1 should be truthy")
	assert(t, !Float(0).Truthy(always), "float 0 should be falsy")

	emptyStr := func(Handle) (bool, bool) { return true, true }
	nonEmptyStr := func(Handle) (bool, bool) { return false, true }
	assert(t, !FromHandle(1).Truthy(emptyStr), "empty string should be falsy")
	assert(t, FromHandle(1).Truthy(nonEmptyStr), "non-empty string should be truthy")
}
