package bytecode

import (
	"strings"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestEmitDecodeRoundTripNarrow(t *testing.T) {
	w := &Writer{}
	w.Emit(Load, 5)
	w.Emit(Add, 2)
	w.Emit(Return)

	d := NewDecoder(w.Code)

	i1, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, i1.Op == Load && i1.Operands[0] == 5, "got %+v", i1)

	i2, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, i2.Op == Add && i2.Operands[0] == 2, "got %+v", i2)

	i3, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, i3.Op == Return, "got %+v", i3)

	assert(t, d.Done(), "expected decoder to be exhausted")
}

func TestEmitPromotesWidthWhenOperandOverflows(t *testing.T) {
	w := &Writer{}
	w.Emit(Load, 300) // doesn't fit in 1 byte -> Wide16 prefix
	assert(t, Op(w.Code[0]) == Wide16, "expected Wide16 prefix, got opcode %d", w.Code[0])

	d := NewDecoder(w.Code)
	instr, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, instr.Op == Load && instr.Operands[0] == 300, "got %+v", instr)
	assert(t, d.Done(), "decoder should have consumed the whole stream")
}

func TestEmitPromotesToWide32(t *testing.T) {
	w := &Writer{}
	w.Emit(Load, 1<<20)

	d := NewDecoder(w.Code)
	instr, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, instr.Operands[0] == 1<<20, "got %d", instr.Operands[0])
}

func TestWidePrefixDoesNotStack(t *testing.T) {
	w := &Writer{}
	w.Emit(Load, 70000) // Wide32
	w.Emit(Load, 5)     // back to narrow
	d := NewDecoder(w.Code)

	i1, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, i1.Operands[0] == 70000, "got %d", i1.Operands[0])

	i2, err := d.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, i2.Operands[0] == 5, "got %d", i2.Operands[0])
}

func TestJumpOffsetRoundTrip(t *testing.T) {
	for _, off := range []int32{0, 1, -1, 1000, -1000, (1 << 23) - 1, -(1 << 23)} {
		assert(t, JumpOffsetFits(int64(off)), "offset %d should fit inline", off)
		raw := EncodeJumpOffset(off)
		got := DecodeJumpOffset(raw)
		assert(t, got == off, "round trip: got %d, want %d", got, off)
	}
}

func TestJumpOffsetOverflowDoesNotFit(t *testing.T) {
	assert(t, !JumpOffsetFits(1<<23), "offset at 2^23 should not fit the 24-bit inline encoding")
}

func TestPoolInterningIsStructural(t *testing.T) {
	p := NewPool()
	a := p.Intern(IntConst(42))
	b := p.Intern(IntConst(42))
	assert(t, a == b, "equal constants should intern to the same index")

	c := p.Intern(StrConst("hi"))
	assert(t, c != a, "distinct constants should get distinct indices")

	d1 := p.Intern(JumpOffsetConst(10))
	d2 := p.Intern(JumpOffsetConst(10))
	assert(t, d1 != d2, "jump-offset spillovers should never be deduplicated")
}

func TestDisassembleAnnotatesConstants(t *testing.T) {
	pool := NewPool()
	idx := pool.Intern(IntConst(7))

	w := &Writer{}
	w.Emit(LoadConst, uint32(idx))

	out, err := Disassemble(w.Code, pool)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(out) > 0, "expected non-empty disassembly")
	assert(t, strings.Contains(out, "; 7"), "expected constant annotation, got %q", out)
}
