package decompile

import "github.com/bkovari/relinq/internal/bytecode"

// basicBlock is a maximal instruction run with a single entry and a
// single exit. Blocks end at (after) every branch instruction and
// before every jump target. The index range is half-open.
type basicBlock struct {
	startOffset int
	startIndex  int
	endIndex    int
}

// lastInstr returns the block's final instruction.
func (b basicBlock) lastInstr(p *bytecode.Program) bytecode.Instruction {
	return p.Instructions[b.endIndex-1]
}

// partitionBlocks splits the instruction sequence into basic blocks.
func partitionBlocks(p *bytecode.Program) []basicBlock {
	targets := p.JumpTargetSet()

	var blocks []basicBlock
	if len(p.Instructions) == 0 {
		return blocks
	}

	current := basicBlock{startOffset: p.Instructions[0].Offset, startIndex: 0}
	for i := 1; i < len(p.Instructions); i++ {
		prev := p.Instructions[i-1]
		next := p.Instructions[i]
		if targets[next.Offset] || prev.Op.IsBranch() {
			current.endIndex = i
			blocks = append(blocks, current)
			current = basicBlock{startOffset: next.Offset, startIndex: i}
		}
	}
	current.endIndex = len(p.Instructions)
	blocks = append(blocks, current)
	return blocks
}

// blockIndexAt returns the index of the block starting at offset.
func blockIndexAt(blocks []basicBlock, offset int) (int, bool) {
	for i, b := range blocks {
		if b.startOffset == offset {
			return i, true
		}
	}
	return 0, false
}
