package bytecode

import "fmt"

// Opcode tags a low-level operation. The set is closed: the stack
// evaluator rejects anything it does not recognize.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Loads. Arg indexes the matching symbol table.
	OpLoadConst   // push Consts[arg]
	OpLoadLocal   // push local variable Locals[arg]
	OpLoadGlobal  // push global name Names[arg]
	OpLoadBinding // push external binding Bindings[arg]
	OpLoadAttr    // pop base, push base.Names[arg]
	OpLoadIndex   // pop base, push base[arg]

	// OpStoreLocal pops a value and records Locals[arg] as a declared
	// entity alias.
	OpStoreLocal

	// Calls. Arg is the total argument count on the stack. OpCallKw
	// additionally pops a constant tuple of keyword names first.
	OpCall
	OpCallKw

	// Unary operators.
	OpUnaryPos
	OpUnaryNeg
	OpUnaryInvert
	OpUnaryNot

	// Binary operators.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpShl
	OpShr
	OpBitAnd
	OpBitXor
	OpBitOr

	// Comparisons. OpCompare's arg selects the operator; OpContains
	// and OpIsOp carry an invert flag in arg.
	OpCompare
	OpContains
	OpIsOp

	// Sequence construction and destructuring. Arg is the element
	// count.
	OpBuildTuple
	OpBuildList
	OpUnpack

	// OpPop discards the top of the stack.
	OpPop

	// Branches. Arg is a jump target, resolved through the program's
	// jump-target table. The *OrPop kinds implement short-circuit
	// evaluation: the tested value stays on the stack along the taken
	// edge and is popped along the other.
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpJumpIfFalseOrPop
	OpJumpIfTrueOrPop
	OpForIter

	// Terminators.
	OpYield
	OpReturn
)

// opcodeNames maps opcodes to their assembler mnemonics, shared by
// the disassembler and the YAML codec.
var opcodeNames = map[Opcode]string{
	OpLoadConst:        "load_const",
	OpLoadLocal:        "load_local",
	OpLoadGlobal:       "load_global",
	OpLoadBinding:      "load_binding",
	OpLoadAttr:         "load_attr",
	OpLoadIndex:        "load_index",
	OpStoreLocal:       "store_local",
	OpCall:             "call",
	OpCallKw:           "call_kw",
	OpUnaryPos:         "unary_pos",
	OpUnaryNeg:         "unary_neg",
	OpUnaryInvert:      "unary_invert",
	OpUnaryNot:         "unary_not",
	OpAdd:              "add",
	OpSub:              "sub",
	OpMul:              "mul",
	OpDiv:              "div",
	OpMod:              "mod",
	OpPow:              "pow",
	OpShl:              "shl",
	OpShr:              "shr",
	OpBitAnd:           "bit_and",
	OpBitXor:           "bit_xor",
	OpBitOr:            "bit_or",
	OpCompare:          "compare",
	OpContains:         "contains",
	OpIsOp:             "is_op",
	OpBuildTuple:       "build_tuple",
	OpBuildList:        "build_list",
	OpUnpack:           "unpack",
	OpPop:              "pop",
	OpJump:             "jump",
	OpJumpIfFalse:      "jump_if_false",
	OpJumpIfTrue:       "jump_if_true",
	OpJumpIfFalseOrPop: "jump_if_false_or_pop",
	OpJumpIfTrueOrPop:  "jump_if_true_or_pop",
	OpForIter:          "for_iter",
	OpYield:            "yield",
	OpReturn:           "return",
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// String returns the opcode's assembler mnemonic.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// ParseOpcode resolves an assembler mnemonic.
func ParseOpcode(name string) (Opcode, error) {
	op, ok := opcodeByName[name]
	if !ok {
		return OpInvalid, fmt.Errorf("unknown opcode mnemonic %q", name)
	}
	return op, nil
}

// IsBranch reports whether the opcode transfers control to a target.
func (op Opcode) IsBranch() bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpForIter:
		return true
	}
	return false
}

// IsConditional reports whether the branch depends on a tested value.
func (op Opcode) IsConditional() bool {
	switch op {
	case OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpForIter:
		return true
	}
	return false
}

// IsShortCircuit reports whether the branch is of the
// keep-value-on-one-side family.
func (op Opcode) IsShortCircuit() bool {
	return op == OpJumpIfFalseOrPop || op == OpJumpIfTrueOrPop
}
