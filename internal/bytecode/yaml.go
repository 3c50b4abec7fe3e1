package bytecode

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bkovari/relinq/internal/qexpr"
)

// Two fixture forms are supported. The symbolic form is what humans
// write:
//
//	program:
//	  - op: load_local
//	    name: p
//	  - op: load_const
//	    value: John
//	  - op: compare
//	    cmp: eq
//	  - op: jump_if_false
//	    to: head
//	  - label: head
//
// The numeric form is the machine encoding: flat instructions with
// resolved symbol-table indices, plus the tables themselves. Encode
// always produces the numeric form.

type programDoc struct {
	// Symbolic form.
	Program []symbolicInstr `yaml:"program,omitempty"`

	// Numeric form.
	Instructions []numericInstr `yaml:"instructions,omitempty"`
	Consts       []any          `yaml:"consts,omitempty"`
	Names        []string       `yaml:"names,omitempty"`
	Locals       []string       `yaml:"locals,omitempty"`
	Bindings     []string       `yaml:"bindings,omitempty"`
	JumpTargets  map[int]int    `yaml:"jump_targets,omitempty"`
}

type symbolicInstr struct {
	Op     string `yaml:"op,omitempty"`
	Label  string `yaml:"label,omitempty"` // pseudo-instruction: mark a label here
	Name   string `yaml:"name,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Cmp    string `yaml:"cmp,omitempty"`
	Invert bool   `yaml:"invert,omitempty"`
	To     string `yaml:"to,omitempty"`
	Arg    int    `yaml:"arg,omitempty"`
}

type numericInstr struct {
	Offset int    `yaml:"offset"`
	Op     string `yaml:"op"`
	Arg    int    `yaml:"arg"`
}

var compareOpByName = map[string]qexpr.CompareOp{
	"eq":     qexpr.CmpEq,
	"ne":     qexpr.CmpNe,
	"lt":     qexpr.CmpLt,
	"le":     qexpr.CmpLe,
	"gt":     qexpr.CmpGt,
	"ge":     qexpr.CmpGe,
	"in":     qexpr.CmpIn,
	"not_in": qexpr.CmpNotIn,
	"is":     qexpr.CmpIs,
	"is_not": qexpr.CmpIsNot,
}

// DecodeYAML parses a program fixture in either form.
func DecodeYAML(data []byte) (*Program, error) {
	var doc programDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse program fixture: %w", err)
	}

	switch {
	case len(doc.Program) > 0:
		return assembleSymbolic(doc.Program)
	case len(doc.Instructions) > 0:
		return decodeNumeric(doc)
	default:
		return nil, fmt.Errorf("program fixture has neither a program nor an instructions section")
	}
}

func assembleSymbolic(instrs []symbolicInstr) (*Program, error) {
	b := NewBuilder()

	// Labels are forward-referenceable; allocate them all up front.
	labels := make(map[string]Label)
	label := func(name string) (Label, error) {
		if name == "" {
			return 0, fmt.Errorf("branch without a target label")
		}
		if l, ok := labels[name]; ok {
			return l, nil
		}
		l := b.NewLabel()
		labels[name] = l
		return l, nil
	}

	for i, in := range instrs {
		if in.Label != "" && in.Op == "" {
			l, err := label(in.Label)
			if err != nil {
				return nil, err
			}
			b.Mark(l)
			continue
		}

		op, err := ParseOpcode(in.Op)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}

		switch op {
		case OpLoadConst:
			b.LoadConst(normalizeConst(in.Value))
		case OpLoadLocal:
			b.LoadLocal(in.Name)
		case OpLoadGlobal:
			b.LoadGlobal(in.Name)
		case OpLoadBinding:
			b.LoadBinding(in.Name)
		case OpLoadAttr:
			b.LoadAttr(in.Name)
		case OpStoreLocal:
			b.StoreLocal(in.Name)
		case OpCompare:
			cmp, ok := compareOpByName[in.Cmp]
			if !ok {
				return nil, fmt.Errorf("instruction %d: unknown comparison %q", i, in.Cmp)
			}
			b.Compare(cmp)
		case OpContains:
			b.Contains(in.Invert)
		case OpIsOp:
			b.Is(in.Invert)
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpForIter:
			l, err := label(in.To)
			if err != nil {
				return nil, fmt.Errorf("instruction %d (%s): %w", i, in.Op, err)
			}
			b.Emit(op, int(l))
		default:
			b.Emit(op, in.Arg)
		}
	}

	prog, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("assemble program fixture: %w", err)
	}
	return prog, nil
}

// normalizeConst widens YAML integers so constants compare uniformly.
func normalizeConst(v any) any {
	if n, ok := v.(int); ok {
		return int64(n)
	}
	return v
}

func decodeNumeric(doc programDoc) (*Program, error) {
	instrs := make([]Instruction, len(doc.Instructions))
	for i, in := range doc.Instructions {
		op, err := ParseOpcode(in.Op)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instrs[i] = Instruction{Offset: in.Offset, Op: op, Arg: in.Arg}
	}
	consts := make([]any, len(doc.Consts))
	for i, c := range doc.Consts {
		consts[i] = normalizeConst(c)
	}
	return &Program{
		Instructions: instrs,
		Consts:       consts,
		Names:        doc.Names,
		Locals:       doc.Locals,
		Bindings:     doc.Bindings,
		JumpTargets:  doc.JumpTargets,
	}, nil
}

// EncodeYAML renders a program in the numeric fixture form.
func EncodeYAML(p *Program) ([]byte, error) {
	doc := programDoc{
		Consts:      p.Consts,
		Names:       p.Names,
		Locals:      p.Locals,
		Bindings:    p.Bindings,
		JumpTargets: p.JumpTargets,
	}
	doc.Instructions = make([]numericInstr, len(p.Instructions))
	for i, in := range p.Instructions {
		doc.Instructions[i] = numericInstr{Offset: in.Offset, Op: in.Op.String(), Arg: in.Arg}
	}
	return yaml.Marshal(doc)
}
