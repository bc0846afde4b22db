package bytecode

import (
	"fmt"
	"io"
)

// baseWidth is the un-prefixed physical byte width of a logical
// operand kind. Register/constant-index/upvalue/module-var/name/count
// operands start 1 byte wide and are promoted by a Wide16/Wide32
// prefix; a small immediate is always 2 bytes (it is already the
// "wide" literal form, per spec §4.5.3's LoadSmi); a jump offset is
// always 3 bytes inline (the 24-bit limit spec §4.1 describes) and is
// never prefix-promoted — once an offset needs more than 24 bits the
// emitter switches the opcode to its *Const spillover variant instead
// of asking for a 4th width tier.
func baseWidth(kind OperandKind) int {
	switch kind {
	case OperandSmallImmediate:
		return 2
	case OperandJumpOffset:
		return 3
	default:
		return 1
	}
}

func promotedWidth(kind OperandKind, factor int) int {
	switch kind {
	case OperandSmallImmediate, OperandJumpOffset:
		return baseWidth(kind)
	default:
		return factor
	}
}

// Writer appends encoded instructions to an in-progress opcode
// stream.
type Writer struct {
	Code []byte
}

// Emit appends op and its operands (already resolved to concrete
// uint32 values, in the order Operands(op) specifies), inserting a
// Wide16/Wide32 prefix first if any register/const/name/etc operand
// does not fit in 1 byte. Returns the byte offset the opcode itself
// starts at (what jump math is relative to).
func (w *Writer) Emit(op Op, operands ...uint32) int {
	shape := Operands(op)
	if len(operands) != len(shape) {
		panic(fmt.Sprintf("bytecode: %s expects %d operands, got %d", op, len(shape), len(operands)))
	}

	factor := 1
	for i, kind := range shape {
		if kind == OperandSmallImmediate || kind == OperandJumpOffset {
			continue
		}
		if fits(operands[i], 1) {
			continue
		}
		if fits(operands[i], 2) && factor < 2 {
			factor = 2
		}
		if !fits(operands[i], 2) {
			factor = 4
		}
	}

	start := len(w.Code)
	switch factor {
	case 2:
		w.Code = append(w.Code, byte(Wide16))
	case 4:
		w.Code = append(w.Code, byte(Wide32))
	}
	start = len(w.Code)
	w.Code = append(w.Code, byte(op))
	for i, kind := range shape {
		width := promotedWidth(kind, factor)
		writeLE(&w.Code, operands[i], width)
	}
	return start
}

func fits(v uint32, width int) bool {
	switch width {
	case 1:
		return v <= 0xFF
	case 2:
		return v <= 0xFFFF
	default:
		return true
	}
}

func writeLE(buf *[]byte, v uint32, width int) {
	for i := 0; i < width; i++ {
		*buf = append(*buf, byte(v>>(8*i)))
	}
}

func readLE(code []byte, pc int, width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(code[pc+i]) << (8 * i)
	}
	return v
}

func overwriteLE(code []byte, pc int, v uint32, width int) {
	for i := 0; i < width; i++ {
		code[pc+i] = byte(v >> (8 * i))
	}
}

// PatchRegisters rewrites every register-kind operand in a finished
// opcode stream from its virtual index to mapping[virtual], the
// register allocator's linear-scan result (spec §4.3 "a second pass
// patches every register operand in the bytecode to its physical
// slot"). It patches in place: mapping never maps a virtual register
// to a larger physical index (the allocator only ever reuses or grows
// the register file, so physical ≤ virtual for every interval), so
// every operand's already-chosen physical width still fits its new
// value and no instruction changes length.
func PatchRegisters(code []byte, mapping []int) {
	factor := 1
	pc := 0
	for pc < len(code) {
		op := Op(code[pc])
		if op == Wide16 {
			factor = 2
			pc++
			continue
		}
		if op == Wide32 {
			factor = 4
			pc++
			continue
		}
		pc++
		shape := Operands(op)
		for _, kind := range shape {
			width := promotedWidth(kind, factor)
			if kind == OperandRegister {
				v := readLE(code, pc, width)
				overwriteLE(code, pc, uint32(mapping[int(v)]), width)
			}
			pc += width
		}
		factor = 1
	}
}

// Decoder walks a finished opcode stream one instruction at a time,
// tracking the current width-prefix factor exactly as the dispatch
// loop must (spec §4.6 "read one opcode byte, apply any width prefix
// accumulated").
type Decoder struct {
	Code []byte
	PC   int
}

// NewDecoder wraps code for decoding starting at offset 0.
func NewDecoder(code []byte) *Decoder { return &Decoder{Code: code} }

// Done reports whether the decoder has consumed the whole stream.
func (d *Decoder) Done() bool { return d.PC >= len(d.Code) }

// Instruction is one decoded instruction: its opcode, the byte offset
// the opcode (not any width prefix) starts at, and its operands in
// declaration order.
type Instruction struct {
	Op       Op
	Start    int
	Operands []uint32
}

// Next decodes the instruction at the decoder's current PC, advancing
// PC past it.
func (d *Decoder) Next() (Instruction, error) {
	factor := 1
	for {
		if d.PC >= len(d.Code) {
			return Instruction{}, io.ErrUnexpectedEOF
		}
		op := Op(d.Code[d.PC])
		if op == Wide16 {
			factor = 2
			d.PC++
			continue
		}
		if op == Wide32 {
			factor = 4
			d.PC++
			continue
		}
		start := d.PC
		d.PC++
		shape := Operands(op)
		operands := make([]uint32, len(shape))
		for i, kind := range shape {
			width := promotedWidth(kind, factor)
			if d.PC+width > len(d.Code) {
				return Instruction{}, io.ErrUnexpectedEOF
			}
			operands[i] = readLE(d.Code, d.PC, width)
			d.PC += width
		}
		return Instruction{Op: op, Start: start, Operands: operands}, nil
	}
}

// DecodeJumpOffset sign-extends a jump instruction's 24-bit inline
// operand to a signed int32.
func DecodeJumpOffset(raw uint32) int32 {
	if raw&0x800000 != 0 {
		return int32(raw | 0xFF000000)
	}
	return int32(raw)
}

// EncodeJumpOffset truncates a signed offset to its 24-bit inline
// encoding. The caller (the emitter) is responsible for checking the
// offset fits before calling this; an offset that does not fit must
// instead be emitted via the opcode's *Const spillover variant.
func EncodeJumpOffset(offset int32) uint32 {
	return uint32(offset) & 0xFFFFFF
}

// JumpOffsetFits reports whether offset can be encoded inline in the
// 24-bit jump operand.
func JumpOffsetFits(offset int64) bool {
	return offset >= -(1<<23) && offset < (1<<23)
}
