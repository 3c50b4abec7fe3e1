package bytecode

import "fmt"

// Instruction is one low-level operation. Offset identifies the
// instruction for jump resolution; offsets are strictly increasing
// but need not be contiguous.
type Instruction struct {
	Offset int
	Op     Opcode
	Arg    int
}

// String renders the instruction in listing form.
func (in Instruction) String() string {
	return fmt.Sprintf("%4d  %-22s %d", in.Offset, in.Op.String(), in.Arg)
}

// Program is the bundle handed to the compiler core by the host-side
// instruction extractor.
//
// Branch instruction args resolve through JumpTargets when the table
// is non-empty; otherwise args are taken as instruction offsets
// directly. Consts, Names, Locals and Bindings are the symbol tables
// load instructions index into.
type Program struct {
	Instructions []Instruction
	Consts       []any
	Names        []string
	Locals       []string
	Bindings     []string
	JumpTargets  map[int]int
}

// ResolveTarget maps a branch instruction's arg to an instruction
// offset.
func (p *Program) ResolveTarget(arg int) int {
	if len(p.JumpTargets) > 0 {
		if offset, ok := p.JumpTargets[arg]; ok {
			return offset
		}
	}
	return arg
}

// IndexOfOffset returns the instruction index holding the given
// offset.
func (p *Program) IndexOfOffset(offset int) (int, bool) {
	// Instructions are ordered by offset; binary search is not worth
	// it at the sizes predicates compile to.
	for i, in := range p.Instructions {
		if in.Offset == offset {
			return i, true
		}
	}
	return 0, false
}

// JumpTargetSet returns the set of instruction offsets that are the
// target of at least one branch.
func (p *Program) JumpTargetSet() map[int]bool {
	targets := make(map[int]bool)
	for _, in := range p.Instructions {
		if in.Op.IsBranch() {
			targets[p.ResolveTarget(in.Arg)] = true
		}
	}
	return targets
}

// Const returns Consts[index], guarding against a malformed stream.
func (p *Program) Const(index int) (any, error) {
	if index < 0 || index >= len(p.Consts) {
		return nil, fmt.Errorf("constant index %d out of range (table size %d)", index, len(p.Consts))
	}
	return p.Consts[index], nil
}

// Name returns Names[index], guarding against a malformed stream.
func (p *Program) Name(index int) (string, error) {
	if index < 0 || index >= len(p.Names) {
		return "", fmt.Errorf("name index %d out of range (table size %d)", index, len(p.Names))
	}
	return p.Names[index], nil
}

// Local returns Locals[index], guarding against a malformed stream.
func (p *Program) Local(index int) (string, error) {
	if index < 0 || index >= len(p.Locals) {
		return "", fmt.Errorf("local index %d out of range (table size %d)", index, len(p.Locals))
	}
	return p.Locals[index], nil
}

// Binding returns Bindings[index], guarding against a malformed
// stream.
func (p *Program) Binding(index int) (string, error) {
	if index < 0 || index >= len(p.Bindings) {
		return "", fmt.Errorf("binding index %d out of range (table size %d)", index, len(p.Bindings))
	}
	return p.Bindings[index], nil
}
