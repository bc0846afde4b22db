package bytecode

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// constRefOperand returns the index within an instruction's operand
// list that refers into the constant pool, if any, so the
// disassembler can print the resolved constant as a trailing comment
// (spec's original disasm.rs does this for every opcode that touches
// the pool).
func constRefOperand(op Op) (operandIndex int, ok bool) {
	shape := Operands(op)
	for i, kind := range shape {
		if kind == OperandConstIndex {
			return i, true
		}
	}
	return 0, false
}

// Disassemble renders every instruction in code as one line, in the
// teacher's "offset: mnemonic operands" shape (see vm.go's
// formatInstructionStr), additionally annotating constant-pool
// references with the resolved constant, the way the original's
// disasm.rs appends "; <constant>".
func Disassemble(code []byte, pool *Pool) (string, error) {
	var b strings.Builder
	d := NewDecoder(code)
	for !d.Done() {
		instr, err := d.Next()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%4d: %s", instr.Start, formatInstruction(instr, pool))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func formatInstruction(instr Instruction, pool *Pool) string {
	parts := lo.Map(instr.Operands, func(v uint32, i int) string {
		if instr.Op.IsJump() && Operands(instr.Op)[i] == OperandJumpOffset {
			return fmt.Sprintf("%+d", DecodeJumpOffset(v))
		}
		return fmt.Sprintf("%d", v)
	})

	line := instr.Op.String()
	if len(parts) > 0 {
		line += " " + strings.Join(parts, " ")
	}

	if idx, ok := constRefOperand(instr.Op); ok && pool != nil {
		constIdx := int(instr.Operands[idx])
		if constIdx < pool.Len() {
			line += fmt.Sprintf("  ; %s", pool.Get(constIdx))
		}
	}
	return line
}
