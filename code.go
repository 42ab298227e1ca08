package ember

import "encoding/binary"

// Opcode is a single byte identifying a VM instruction. Operand
// widths are fixed per opcode (0, 1, 2 or 8 bytes, big-endian),
// matching the variable-width instruction encoding used throughout
// the instruction set.
type Opcode byte

const (
	OpConstant Opcode = iota // 2-byte constant pool index
	OpNull
	OpTrue
	OpFalse
	OpPop

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpMinus
	OpBang
	OpBitNot

	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterOrEqual

	OpJump        // 2-byte absolute target
	OpJumpFalsy   // 2-byte absolute target, pops the test value
	OpJumpTruthy  // 2-byte absolute target, pops the test value

	OpModuleGlobalGet    // 2-byte index
	OpModuleGlobalSet    // 2-byte index; reassignment, type-checked against the old value
	OpModuleGlobalDefine // 2-byte index; fresh binding, exempt from the type check
	OpLocalGet           // 1-byte slot
	OpLocalSet
	OpLocalDefine
	OpFreeGet // 1-byte slot
	OpFreeSet
	OpApeGlobalGet // 2-byte index, host builtins
	OpFunctionGet  // recursive self-reference, no operand
	OpThisGet      // no operand; reads the top of the this stack

	OpArray    // 2-byte element count
	OpMapStart // 2-byte pair count; pushes the in-construction map onto the this stack
	OpMapEnd   // 2-byte pair count; fills the map and moves it to the operand stack
	OpIndexGet
	OpIndexSet

	OpCall // 1-byte argument count
	OpReturnValue
	OpReturn
	OpClosure // 2-byte constant index, 1-byte free-variable count

	OpForeachNext // 2-byte jump target taken once the iterator is exhausted

	OpSetRecoverTarget // 2-byte absolute target for the enclosing recover block's handler

	OpDup
	OpNoOp
)

type operandWidths = []int

var definitions = map[Opcode]struct {
	name    string
	widths  operandWidths
}{
	OpConstant:        {"OpConstant", operandWidths{2}},
	OpNull:            {"OpNull", operandWidths{}},
	OpTrue:            {"OpTrue", operandWidths{}},
	OpFalse:           {"OpFalse", operandWidths{}},
	OpPop:             {"OpPop", operandWidths{}},

	OpAdd:        {"OpAdd", operandWidths{}},
	OpSub:        {"OpSub", operandWidths{}},
	OpMul:        {"OpMul", operandWidths{}},
	OpDiv:        {"OpDiv", operandWidths{}},
	OpMod:        {"OpMod", operandWidths{}},
	OpBitAnd:     {"OpBitAnd", operandWidths{}},
	OpBitOr:      {"OpBitOr", operandWidths{}},
	OpBitXor:     {"OpBitXor", operandWidths{}},
	OpShiftLeft:  {"OpShiftLeft", operandWidths{}},
	OpShiftRight: {"OpShiftRight", operandWidths{}},
	OpMinus:      {"OpMinus", operandWidths{}},
	OpBang:       {"OpBang", operandWidths{}},
	OpBitNot:     {"OpBitNot", operandWidths{}},

	OpEqual:          {"OpEqual", operandWidths{}},
	OpNotEqual:       {"OpNotEqual", operandWidths{}},
	OpGreaterThan:    {"OpGreaterThan", operandWidths{}},
	OpGreaterOrEqual: {"OpGreaterOrEqual", operandWidths{}},

	OpJump:       {"OpJump", operandWidths{2}},
	OpJumpFalsy:  {"OpJumpFalsy", operandWidths{2}},
	OpJumpTruthy: {"OpJumpTruthy", operandWidths{2}},

	OpModuleGlobalGet:    {"OpModuleGlobalGet", operandWidths{2}},
	OpModuleGlobalSet:    {"OpModuleGlobalSet", operandWidths{2}},
	OpModuleGlobalDefine: {"OpModuleGlobalDefine", operandWidths{2}},
	OpLocalGet:           {"OpLocalGet", operandWidths{1}},
	OpLocalSet:           {"OpLocalSet", operandWidths{1}},
	OpLocalDefine:        {"OpLocalDefine", operandWidths{1}},
	OpFreeGet:            {"OpFreeGet", operandWidths{1}},
	OpFreeSet:            {"OpFreeSet", operandWidths{1}},
	OpApeGlobalGet:       {"OpApeGlobalGet", operandWidths{2}},
	OpFunctionGet:        {"OpFunctionGet", operandWidths{}},
	OpThisGet:            {"OpThisGet", operandWidths{}},

	OpArray:    {"OpArray", operandWidths{2}},
	OpMapStart: {"OpMapStart", operandWidths{2}},
	OpMapEnd:   {"OpMapEnd", operandWidths{2}},
	OpIndexGet: {"OpIndexGet", operandWidths{}},
	OpIndexSet: {"OpIndexSet", operandWidths{}},

	OpCall:        {"OpCall", operandWidths{1}},
	OpReturnValue: {"OpReturnValue", operandWidths{}},
	OpReturn:      {"OpReturn", operandWidths{}},
	OpClosure:     {"OpClosure", operandWidths{2, 1}},

	OpForeachNext: {"OpForeachNext", operandWidths{2}},

	OpSetRecoverTarget: {"OpSetRecoverTarget", operandWidths{2}},

	OpDup:  {"OpDup", operandWidths{}},
	OpNoOp: {"OpNoOp", operandWidths{}},
}

// Name returns the mnemonic used in disassembly and error messages.
func (op Opcode) Name() string {
	if d, ok := definitions[op]; ok {
		return d.name
	}
	return "OpUnknown"
}

// OperandWidths reports the byte width of each operand that follows
// this opcode in an encoded instruction stream.
func (op Opcode) OperandWidths() []int {
	if d, ok := definitions[op]; ok {
		return d.widths
	}
	return nil
}

// SizeInBytes is the total encoded length of this opcode plus its
// operands: the value the compiler uses to compute jump targets.
func (op Opcode) SizeInBytes() int {
	size := 1
	for _, w := range op.OperandWidths() {
		size += w
	}
	return size
}

// MakeInstruction encodes a single opcode and its operands into a
// byte slice, big-endian, the width of each operand taken from the
// opcode's definition.
func MakeInstruction(op Opcode, operands ...int) []byte {
	widths := op.OperandWidths()
	out := make([]byte, op.SizeInBytes())
	out[0] = byte(op)
	offset := 1
	for i, operand := range operands {
		width := widths[i]
		switch width {
		case 1:
			out[offset] = byte(operand)
		case 2:
			binary.BigEndian.PutUint16(out[offset:], uint16(operand))
		case 8:
			binary.BigEndian.PutUint64(out[offset:], uint64(operand))
		}
		offset += width
	}
	return out
}

// ReadOperand decodes a single operand of the given byte width at
// offset within ins.
func ReadOperand(width int, ins []byte, offset int) int {
	switch width {
	case 1:
		return int(ins[offset])
	case 2:
		return int(binary.BigEndian.Uint16(ins[offset:]))
	case 8:
		return int(binary.BigEndian.Uint64(ins[offset:]))
	}
	return 0
}

// ReadOperands decodes every operand following op at ins[offset:],
// returning them plus the number of bytes consumed.
func ReadOperands(op Opcode, ins []byte, offset int) ([]int, int) {
	widths := op.OperandWidths()
	operands := make([]int, len(widths))
	read := 0
	for i, w := range widths {
		operands[i] = ReadOperand(w, ins, offset+read)
		read += w
	}
	return operands, read
}

// Instructions is a flat, concatenated stream of encoded
// instructions, the unit the compiler emits and the VM executes.
type Instructions []byte
