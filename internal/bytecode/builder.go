package bytecode

import (
	"fmt"

	"github.com/bkovari/relinq/internal/qexpr"
)

// Label is a forward-referenceable position in a program under
// assembly. Branch args carry the label id and resolve through the
// program's jump-target table.
type Label int

// Builder assembles instruction streams. It interns constants and
// names into the program's symbol tables and assigns sequential
// offsets. Tests, the CLI fixture loader and host-side extractors all
// go through it.
type Builder struct {
	instrs   []Instruction
	consts   []any
	names    []string
	locals   []string
	bindings []string
	labels   []int // label id -> offset, -1 while unresolved
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// NewLabel allocates an unresolved label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark resolves a label to the next emitted instruction's offset.
func (b *Builder) Mark(l Label) {
	b.labels[l] = len(b.instrs)
}

// Emit appends a raw instruction.
func (b *Builder) Emit(op Opcode, arg int) {
	b.instrs = append(b.instrs, Instruction{Offset: len(b.instrs), Op: op, Arg: arg})
}

func (b *Builder) internConst(v any) int {
	for i, c := range b.consts {
		if constComparable(c) && constComparable(v) && c == v {
			return i
		}
	}
	b.consts = append(b.consts, v)
	return len(b.consts) - 1
}

func constComparable(v any) bool {
	switch v.(type) {
	case nil, bool, int, int64, float64, string:
		return true
	}
	return false
}

func internString(table *[]string, s string) int {
	for i, existing := range *table {
		if existing == s {
			return i
		}
	}
	*table = append(*table, s)
	return len(*table) - 1
}

// LoadConst pushes a constant.
func (b *Builder) LoadConst(v any) { b.Emit(OpLoadConst, b.internConst(v)) }

// LoadLocal pushes a local (entity alias) reference.
func (b *Builder) LoadLocal(name string) { b.Emit(OpLoadLocal, internString(&b.locals, name)) }

// LoadGlobal pushes a global name reference.
func (b *Builder) LoadGlobal(name string) { b.Emit(OpLoadGlobal, internString(&b.names, name)) }

// LoadBinding pushes an external binding reference.
func (b *Builder) LoadBinding(name string) { b.Emit(OpLoadBinding, internString(&b.bindings, name)) }

// LoadAttr replaces the top of the stack with an attribute access.
func (b *Builder) LoadAttr(name string) { b.Emit(OpLoadAttr, internString(&b.names, name)) }

// LoadIndex replaces the top of the stack with an index access.
func (b *Builder) LoadIndex(index int) { b.Emit(OpLoadIndex, index) }

// StoreLocal pops a value and declares an entity alias.
func (b *Builder) StoreLocal(name string) { b.Emit(OpStoreLocal, internString(&b.locals, name)) }

// Call pops argc arguments plus the callee and pushes a call node.
func (b *Builder) Call(argc int) { b.Emit(OpCall, argc) }

// CallKw is Call with a keyword-names constant tuple on top of the
// stack.
func (b *Builder) CallKw(argc int) { b.Emit(OpCallKw, argc) }

// Compare pops two operands and pushes a comparison.
func (b *Builder) Compare(op qexpr.CompareOp) { b.Emit(OpCompare, int(op)) }

// Contains emits a membership test; invert yields "not in".
func (b *Builder) Contains(invert bool) { b.Emit(OpContains, boolArg(invert)) }

// Is emits an identity test; invert yields "is not".
func (b *Builder) Is(invert bool) { b.Emit(OpIsOp, boolArg(invert)) }

// BuildTuple pops count values and pushes a tuple.
func (b *Builder) BuildTuple(count int) { b.Emit(OpBuildTuple, count) }

// BuildList pops count values and pushes a list.
func (b *Builder) BuildList(count int) { b.Emit(OpBuildList, count) }

// Unpack pops a sequence and pushes count element accesses.
func (b *Builder) Unpack(count int) { b.Emit(OpUnpack, count) }

// Pop discards the top of the stack.
func (b *Builder) Pop() { b.Emit(OpPop, 0) }

// Jump emits an unconditional branch.
func (b *Builder) Jump(l Label) { b.Emit(OpJump, int(l)) }

// JumpIfFalse pops the tested value and branches when it is false.
func (b *Builder) JumpIfFalse(l Label) { b.Emit(OpJumpIfFalse, int(l)) }

// JumpIfTrue pops the tested value and branches when it is true.
func (b *Builder) JumpIfTrue(l Label) { b.Emit(OpJumpIfTrue, int(l)) }

// JumpIfFalseOrPop branches keeping the tested value when it is
// false, popping it otherwise (short-circuit AND).
func (b *Builder) JumpIfFalseOrPop(l Label) { b.Emit(OpJumpIfFalseOrPop, int(l)) }

// JumpIfTrueOrPop branches keeping the tested value when it is true,
// popping it otherwise (short-circuit OR).
func (b *Builder) JumpIfTrueOrPop(l Label) { b.Emit(OpJumpIfTrueOrPop, int(l)) }

// ForIter advances the iterator on top of the stack, branching to l
// when exhausted.
func (b *Builder) ForIter(l Label) { b.Emit(OpForIter, int(l)) }

// Yield emits a projection-yield point.
func (b *Builder) Yield() { b.Emit(OpYield, 0) }

// Return emits a terminal return point.
func (b *Builder) Return() { b.Emit(OpReturn, 0) }

func boolArg(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Build finalizes the program. Branch args remain label ids; the
// jump-target table maps them to resolved offsets.
func (b *Builder) Build() (*Program, error) {
	targets := make(map[int]int, len(b.labels))
	for id, offset := range b.labels {
		if offset < 0 {
			return nil, fmt.Errorf("label %d marked nowhere", id)
		}
		targets[id] = offset
	}
	for _, in := range b.instrs {
		if in.Op.IsBranch() {
			if _, ok := targets[in.Arg]; !ok {
				return nil, fmt.Errorf("branch at offset %d references unknown label %d", in.Offset, in.Arg)
			}
		}
	}
	return &Program{
		Instructions: b.instrs,
		Consts:       b.consts,
		Names:        b.names,
		Locals:       b.locals,
		Bindings:     b.bindings,
		JumpTargets:  targets,
	}, nil
}
