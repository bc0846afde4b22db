// Package bytecode implements the core's variable-width instruction
// format: the opcode set, the Wide16/Wide32 width-prefix mechanism,
// the per-function constant pool, and a disassembler. It is grounded
// in the teacher's own bytecode.go/compile.go (opcode enum with a
// string table built by init(), NumRequiredOpArgs/NumOptionalOpArgs
// predicates, a packed Instruction type) but the opcode set itself
// follows the accumulator-plus-register model from spec §4.1/§4.6,
// not the teacher's stack machine.
package bytecode

// Op is a single opcode byte.
type Op byte

const (
	Nop Op = iota

	// Loads and stores (spec §4.6.1).
	Load
	Store
	LoadConst
	LoadUpvalue
	StoreUpvalue
	LoadModuleVar
	StoreModuleVar
	LoadGlobal
	StoreGlobal
	LoadField
	LoadFieldOpt
	StoreField
	LoadIndex
	StoreIndex
	LoadSmi
	LoadTrue
	LoadFalse
	LoadNone

	// Arithmetic and comparison (spec §4.6.2).
	Add
	Sub
	Mul
	Div
	Rem
	Pow
	Neg
	Not
	IsNone
	CmpEq
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe

	// Control flow (spec §4.5.4/§4.5.5).
	Jump
	JumpIfFalse
	JumpIfTrue
	JumpLoop
	JumpConst
	JumpIfFalseConst
	JumpIfTrueConst
	JumpLoopConst

	// Calls and functions (spec §4.5.6/§4.6.3).
	MakeFn
	CaptureReg
	CaptureSlot
	Call
	Return
	Yield

	// Classes (spec §4.4).
	MakeClass
	MakeClassDerived

	// Aggregates.
	MakeList
	MakeDict

	// I/O (spec §4.6.4).
	Print
	PrintN

	// Width prefixes (spec §4.1). These are not real instructions:
	// they promote the operand width of the opcode immediately
	// following them and do not themselves advance the accumulator.
	Wide16
	Wide32

	opCount
)

var opNames = [opCount]string{
	Nop:              "nop",
	Load:             "load",
	Store:            "store",
	LoadConst:        "load_const",
	LoadUpvalue:      "load_upvalue",
	StoreUpvalue:     "store_upvalue",
	LoadModuleVar:    "load_mvar",
	StoreModuleVar:   "store_mvar",
	LoadGlobal:       "load_global",
	StoreGlobal:      "store_global",
	LoadField:        "load_field",
	LoadFieldOpt:     "load_field_opt",
	StoreField:       "store_field",
	LoadIndex:        "load_index",
	StoreIndex:       "store_index",
	LoadSmi:          "load_smi",
	LoadTrue:         "load_true",
	LoadFalse:        "load_false",
	LoadNone:         "load_none",
	Add:              "add",
	Sub:              "sub",
	Mul:              "mul",
	Div:              "div",
	Rem:              "rem",
	Pow:              "pow",
	Neg:              "neg",
	Not:              "not",
	IsNone:           "is_none",
	CmpEq:            "cmp_eq",
	CmpNe:            "cmp_ne",
	CmpGt:            "cmp_gt",
	CmpGe:            "cmp_ge",
	CmpLt:            "cmp_lt",
	CmpLe:            "cmp_le",
	Jump:             "jump",
	JumpIfFalse:      "jump_if_false",
	JumpIfTrue:       "jump_if_true",
	JumpLoop:         "jump_loop",
	JumpConst:        "jump_const",
	JumpIfFalseConst: "jump_if_false_const",
	JumpIfTrueConst:  "jump_if_true_const",
	JumpLoopConst:    "jump_loop_const",
	MakeFn:           "make_fn",
	CaptureReg:       "capture_reg",
	CaptureSlot:      "capture_slot",
	Call:             "call",
	Return:           "return",
	Yield:            "yield",
	MakeClass:        "make_class",
	MakeClassDerived: "make_class_derived",
	MakeList:         "make_list",
	MakeDict:         "make_dict",
	Print:            "print",
	PrintN:           "print_n",
	Wide16:           "wide16",
	Wide32:           "wide32",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "?unknown?"
}

// OperandKind classifies what an opcode's logical operand means,
// which in turn decides whether the disassembler and the emitter's
// register patcher treat it specially.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandConstIndex
	OperandUpvalueIndex
	OperandModuleVarIndex
	OperandNameIndex
	OperandJumpOffset
	OperandCount
	OperandSmallImmediate
)

// operandShape describes one opcode's fixed sequence of logical
// operands (in encoding order). A small immediate is always 2 bytes and
// a jump offset always 3 bytes; every other operand's physical width is
// 1 byte unless a Wide16/Wide32 prefix promoted it.
var operandShapes = map[Op][]OperandKind{
	Nop:   {},
	Load:  {OperandRegister},
	Store: {OperandRegister},
	// LoadConst/Load{Upvalue,ModuleVar,Global}/Load{Field,FieldOpt} all
	// target acc directly (spec §4.6.1): "LoadConst idx -> acc :=
	// pool[idx]", "Load/StoreField name_idx on acc: look up / set a
	// field", etc. None of them carry a register operand.
	LoadConst:      {OperandConstIndex},
	LoadUpvalue:    {OperandUpvalueIndex},
	StoreUpvalue:   {OperandUpvalueIndex},
	LoadModuleVar:  {OperandModuleVarIndex},
	StoreModuleVar: {OperandModuleVarIndex},
	LoadGlobal:     {OperandNameIndex},
	StoreGlobal:    {OperandNameIndex},
	LoadField:    {OperandNameIndex},
	LoadFieldOpt: {OperandNameIndex},
	// StoreField needs both the target object and the value: the
	// object comes from a register (set up by the emitter before
	// evaluating the assigned value into acc), the value is acc, and
	// the field name is the constant operand.
	StoreField: {OperandRegister, OperandNameIndex},
	// LoadIndex reg: "compute a key from stack[base+reg] ..., then
	// index acc" (spec §4.6.1) -- acc holds the container both before
	// and after. StoreIndex needs a container and a key in addition to
	// the value already sitting in acc, so it takes two registers:
	// the container and the key.
	LoadIndex:  {OperandRegister},
	StoreIndex: {OperandRegister, OperandRegister},
	LoadSmi:    {OperandSmallImmediate},
	LoadTrue:   {},
	LoadFalse:  {},
	LoadNone:   {},
	Add:        {OperandRegister},
	Sub:        {OperandRegister},
	Mul:        {OperandRegister},
	Div:        {OperandRegister},
	Rem:        {OperandRegister},
	Pow:        {OperandRegister},
	Neg:        {},
	Not:        {},
	IsNone:     {},
	CmpEq:      {OperandRegister},
	CmpNe:      {OperandRegister},
	CmpGt:      {OperandRegister},
	CmpGe:      {OperandRegister},
	CmpLt:      {OperandRegister},
	CmpLe:      {OperandRegister},
	Jump:             {OperandJumpOffset},
	JumpIfFalse:      {OperandJumpOffset},
	JumpIfTrue:       {OperandJumpOffset},
	JumpLoop:         {OperandJumpOffset},
	JumpConst:        {OperandConstIndex},
	JumpIfFalseConst: {OperandConstIndex},
	JumpIfTrueConst:  {OperandConstIndex},
	JumpLoopConst:    {OperandConstIndex},
	// MakeFn idx: acc := new closure over pool[idx]'s FunctionDescriptor.
	MakeFn:           {OperandConstIndex},
	CaptureReg:       {OperandRegister},
	CaptureSlot:      {OperandUpvalueIndex},
	Call:             {OperandRegister, OperandCount},
	Return:           {},
	Yield:            {},
	MakeClass:        {OperandRegister, OperandConstIndex, OperandCount},
	MakeClassDerived: {OperandRegister, OperandConstIndex, OperandCount},
	// MakeList/MakeDict window, count: acc := new aggregate built from
	// `count` (MakeDict: `count` key/value pairs) consecutive registers
	// starting at window, mirroring MakeClass's register-window
	// convention.
	MakeList: {OperandRegister, OperandCount},
	MakeDict: {OperandRegister, OperandCount},
	Print:    {},
	PrintN:   {OperandRegister, OperandCount},
}

// Operands returns the logical operand shape for op.
func Operands(op Op) []OperandKind {
	return operandShapes[op]
}

// IsJump reports whether op is one of the branch instructions whose
// target is computed relative to the start of the instruction (spec
// §4.1 "relative to the start of the jump instruction").
func (o Op) IsJump() bool {
	switch o {
	case Jump, JumpIfFalse, JumpIfTrue, JumpLoop, JumpConst, JumpIfFalseConst, JumpIfTrueConst, JumpLoopConst:
		return true
	default:
		return false
	}
}

// IsConstJumpVariant reports whether op is the constant-pool spillover
// form of a jump, emitted when an offset overflows the widest inline
// encoding (spec §4.1).
func (o Op) IsConstJumpVariant() bool {
	switch o {
	case JumpConst, JumpIfFalseConst, JumpIfTrueConst, JumpLoopConst:
		return true
	default:
		return false
	}
}

// ConstVariantOf returns the constant-pool spillover opcode for an
// inline jump opcode, used when the emitter needs to rewrite a patch
// site whose offset no longer fits (spec §4.5.4).
func ConstVariantOf(op Op) (Op, bool) {
	switch op {
	case Jump:
		return JumpConst, true
	case JumpIfFalse:
		return JumpIfFalseConst, true
	case JumpIfTrue:
		return JumpIfTrueConst, true
	case JumpLoop:
		return JumpLoopConst, true
	default:
		return Nop, false
	}
}
