package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a human-readable listing of the program, with
// resolved symbol-table operands and jump-target markers in the left
// margin.
func Disassemble(w io.Writer, p *Program) error {
	targets := p.JumpTargetSet()

	for _, in := range p.Instructions {
		marker := "  "
		if targets[in.Offset] {
			marker = ">>"
		}
		operand := operandText(p, in)
		line := fmt.Sprintf("%s %4d  %-22s", marker, in.Offset, in.Op.String())
		if operand != "" {
			line += " " + operand
		}
		if _, err := io.WriteString(w, strings.TrimRight(line, " ")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func operandText(p *Program, in Instruction) string {
	switch in.Op {
	case OpLoadConst:
		if v, err := p.Const(in.Arg); err == nil {
			return fmt.Sprintf("%d (%v)", in.Arg, v)
		}
	case OpLoadLocal, OpStoreLocal:
		if name, err := p.Local(in.Arg); err == nil {
			return fmt.Sprintf("%d (%s)", in.Arg, name)
		}
	case OpLoadGlobal, OpLoadAttr:
		if name, err := p.Name(in.Arg); err == nil {
			return fmt.Sprintf("%d (%s)", in.Arg, name)
		}
	case OpLoadBinding:
		if name, err := p.Binding(in.Arg); err == nil {
			return fmt.Sprintf("%d (%s)", in.Arg, name)
		}
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpForIter:
		return fmt.Sprintf("%d (to %d)", in.Arg, p.ResolveTarget(in.Arg))
	case OpCompare:
		for name, op := range compareOpByName {
			if int(op) == in.Arg {
				return fmt.Sprintf("%d (%s)", in.Arg, name)
			}
		}
	case OpYield, OpReturn, OpPop:
		return ""
	}
	return fmt.Sprintf("%d", in.Arg)
}
