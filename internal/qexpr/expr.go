package qexpr

// Precedence levels. Higher binds tighter. The values mirror the
// source expression grammar the instruction streams are compiled
// from, so a rendered expression needs parentheses exactly where the
// original notation would.
const (
	PrecTopLevel    = -1 // sentinel for rendering roots
	PrecConditional = 0
	PrecDisjunction = 1
	PrecConjunction = 2
	PrecNegation    = 3
	PrecComparison  = 4
	PrecBitOr       = 5
	PrecBitXor      = 6
	PrecBitAnd      = 7
	PrecShift       = 8
	PrecAdditive    = 9
	PrecMultiplic   = 10
	PrecUnary       = 11
	PrecPower       = 12
	PrecPostfix     = 13
	PrecAttribute   = 14
	PrecAtom        = 15
)

// Expression is a node in the query expression tree.
//
// This is a sealed interface - only types in this package implement
// it. The marker method prevents external implementations and keeps
// type switches over the variant set exhaustive.
type Expression interface {
	exprNode() // marker - seals the interface to this package

	// Precedence reports the node's binding strength, used for
	// minimal parenthesization when re-serializing.
	Precedence() int
}

// RefScope identifies where a variable reference resolves.
type RefScope int

const (
	// ScopeLocal is an entity alias bound by the query itself.
	ScopeLocal RefScope = iota
	// ScopeGlobal is a free name resolved against the marker-function
	// and parameter tables.
	ScopeGlobal
	// ScopeBinding is an external binding captured from the caller.
	ScopeBinding
)

// Constant is a literal value: nil, bool, int64, float64, string or
// time.Time.
type Constant struct {
	Value any
}

func (Constant) exprNode()       {}
func (Constant) Precedence() int { return PrecAtom }

// LocalRef references an entity alias declared by the query.
type LocalRef struct {
	Name string
}

func (LocalRef) exprNode()       {}
func (LocalRef) Precedence() int { return PrecAtom }

// GlobalRef references a free name: a marker function or a positional
// query parameter.
type GlobalRef struct {
	Name string
}

func (GlobalRef) exprNode()       {}
func (GlobalRef) Precedence() int { return PrecAtom }

// BindingRef references an external binding whose value is supplied
// by the caller and substituted at compile time.
type BindingRef struct {
	Name string
}

func (BindingRef) exprNode()       {}
func (BindingRef) Precedence() int { return PrecAtom }

// AttributeAccess is base.name, typically alias.column.
type AttributeAccess struct {
	Base Expression
	Name string
}

func (AttributeAccess) exprNode()       {}
func (AttributeAccess) Precedence() int { return PrecAttribute }

// IndexAccess is base[index]. Produced by sequence unpacking.
type IndexAccess struct {
	Base  Expression
	Index int
}

func (IndexAccess) exprNode()       {}
func (IndexAccess) Precedence() int { return PrecPostfix }

// KwArg is a keyword argument of a Call.
type KwArg struct {
	Name  string
	Value Expression
}

// Call is callee(args..., kwargs...).
type Call struct {
	Callee Expression
	Args   []Expression
	KwArgs []KwArg
}

func (Call) exprNode()       {}
func (Call) Precedence() int { return PrecPostfix }

// FunctionName returns the called function's name when the callee is
// a plain global reference, or "" otherwise. Marker dispatch keys off
// this name together with the argument count.
func (c Call) FunctionName() string {
	if ref, ok := c.Callee.(GlobalRef); ok {
		return ref.Name
	}
	return ""
}

// UnaryKind enumerates unary operators.
type UnaryKind int

const (
	UnaryPos UnaryKind = iota
	UnaryNeg
	UnaryInvert
)

// UnaryOp is a prefix arithmetic or bitwise operator.
type UnaryOp struct {
	Kind    UnaryKind
	Operand Expression
}

func (UnaryOp) exprNode()       {}
func (UnaryOp) Precedence() int { return PrecUnary }

// BinaryKind enumerates binary operators.
type BinaryKind int

const (
	BinAdd BinaryKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
	BinShl
	BinShr
	BinAnd
	BinXor
	BinOr
)

var binaryPrecedence = map[BinaryKind]int{
	BinPow: PrecPower,
	BinMul: PrecMultiplic,
	BinDiv: PrecMultiplic,
	BinMod: PrecMultiplic,
	BinAdd: PrecAdditive,
	BinSub: PrecAdditive,
	BinShl: PrecShift,
	BinShr: PrecShift,
	BinAnd: PrecBitAnd,
	BinXor: PrecBitXor,
	BinOr:  PrecBitOr,
}

// BinaryOp is an infix arithmetic or bitwise operator. Its precedence
// depends on the operator kind.
type BinaryOp struct {
	Kind  BinaryKind
	Left  Expression
	Right Expression
}

func (BinaryOp) exprNode() {}
func (b BinaryOp) Precedence() int {
	return binaryPrecedence[b.Kind]
}

// CompareOp enumerates comparison operators.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpIn
	CmpNotIn
	CmpIs
	CmpIsNot
)

// Comparison is left op right.
type Comparison struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

func (Comparison) exprNode()       {}
func (Comparison) Precedence() int { return PrecComparison }

// Negation is the logical complement of a Boolean operand.
type Negation struct {
	Operand Expression
}

func (Negation) exprNode()       {}
func (Negation) Precedence() int { return PrecNegation }

// Conjunction is the short-circuit AND of two or more operands, in
// source order.
type Conjunction struct {
	Operands []Expression
}

func (Conjunction) exprNode()       {}
func (Conjunction) Precedence() int { return PrecConjunction }

// Disjunction is the short-circuit OR of two or more operands, in
// source order.
type Disjunction struct {
	Operands []Expression
}

func (Disjunction) exprNode()       {}
func (Disjunction) Precedence() int { return PrecDisjunction }

// Conditional is "then if cond else else", rendered to SQL as a CASE
// expression.
type Conditional struct {
	Cond Expression
	Then Expression
	Else Expression
}

func (Conditional) exprNode()       {}
func (Conditional) Precedence() int { return PrecConditional }

// Tuple is a fixed-arity sequence, e.g. a multi-column projection.
type Tuple struct {
	Elems []Expression
}

func (Tuple) exprNode()       {}
func (Tuple) Precedence() int { return PrecAtom }

// Sequence is a list-shaped sequence, e.g. the right operand of an IN
// comparison.
type Sequence struct {
	Elems []Expression
}

func (Sequence) exprNode()       {}
func (Sequence) Precedence() int { return PrecAtom }
