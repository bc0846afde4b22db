package emit

import (
	"sort"

	"github.com/mulang-project/mulang/bytecode"
)

// Builder wraps a bytecode.Writer with label/patch-site tracking so
// the statement/expression emitter can emit forward jumps before
// their target is known, then resolve every label in one pass at the
// end (spec §4.1/§4.5.4/§4.5.5).
type Builder struct {
	w    bytecode.Writer
	pool *bytecode.Pool

	labels  []int // bound position, or -1 if still unbound
	patches []patchSite
}

type patchSite struct {
	pos   int // byte offset the jump opcode starts at
	op    bytecode.Op
	label int
}

// NewBuilder returns a Builder that interns constants into pool.
func NewBuilder(pool *bytecode.Pool) *Builder {
	return &Builder{pool: pool}
}

// Emit appends a non-jump instruction and returns its start offset.
func (b *Builder) Emit(op bytecode.Op, operands ...uint32) int {
	return b.w.Emit(op, operands...)
}

// NewLabel allocates an unbound label.
func (b *Builder) NewLabel() int {
	b.labels = append(b.labels, -1)
	return len(b.labels) - 1
}

// BindLabel fixes label's target to the current end of the stream.
func (b *Builder) BindLabel(label int) {
	b.labels[label] = len(b.w.Code)
}

// EmitJump appends a jump-family instruction targeting label, whose
// position may not yet be bound; the real offset is filled in by
// Finish.
func (b *Builder) EmitJump(op bytecode.Op, label int) int {
	start := b.w.Emit(op, 0)
	b.patches = append(b.patches, patchSite{pos: start, op: op, label: label})
	return start
}

// Len returns the current length of the emitted stream.
func (b *Builder) Len() int { return len(b.w.Code) }

// Finish patches every recorded jump against its now-bound label and
// returns the final opcode stream. A jump whose resolved offset
// overflows the 24-bit inline encoding is rewritten in place to its
// constant-pool spillover opcode (spec §4.1): the offset is interned
// into the pool and the instruction's operand becomes a (possibly
// width-promoted) constant index instead of a fixed 3-byte offset,
// so every other recorded position after the rewritten instruction is
// shifted to account for the new instruction length.
func (b *Builder) Finish() []byte {
	// Process patch sites in position order so a splice's effect on
	// later positions is always visible to the next iteration. This is
	// a plain ordering sort, not a filter/map/contains scan, so it
	// stays on sort.Slice rather than samber/lo (which has no sort
	// primitive of its own).
	sites := append([]patchSite(nil), b.patches...)
	sort.Slice(sites, func(i, j int) bool { return sites[i].pos < sites[j].pos })

	for _, site := range sites {
		target := b.labels[site.label]
		offset := int64(target - site.pos)

		if bytecode.JumpOffsetFits(offset) {
			patchJumpOffset3(b.w.Code, site.pos, bytecode.EncodeJumpOffset(int32(offset)))
			continue
		}

		constOp, ok := bytecode.ConstVariantOf(site.op)
		if !ok {
			// Only plain jump opcodes have a *Const spillover; anything
			// else overflowing 24 bits indicates a pathologically large
			// function the emitter cannot support.
			panic("emit: jump offset overflow with no constant-pool spillover variant")
		}
		idx := b.pool.Intern(bytecode.JumpOffsetConst(offset))

		var tmp bytecode.Writer
		tmp.Emit(constOp, uint32(idx))
		newBytes := tmp.Code

		const oldLen = 4 // opcode byte + fixed 3-byte jump offset
		delta := len(newBytes) - oldLen

		rest := append([]byte(nil), b.w.Code[site.pos+oldLen:]...)
		b.w.Code = append(b.w.Code[:site.pos], append(newBytes, rest...)...)

		for k := range b.labels {
			if b.labels[k] > site.pos {
				b.labels[k] += delta
			}
		}
		for k := range sites {
			if sites[k].pos > site.pos {
				sites[k].pos += delta
			}
		}
	}

	return b.w.Code
}

// patchJumpOffset3 overwrites the 3-byte inline jump operand starting
// right after the opcode byte at pos.
func patchJumpOffset3(code []byte, pos int, raw uint32) {
	code[pos+1] = byte(raw)
	code[pos+2] = byte(raw >> 8)
	code[pos+3] = byte(raw >> 16)
}
