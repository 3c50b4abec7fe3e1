// Package decompile reconstructs structured expressions from a query
// program's instruction stream.
//
// The stream arrives as a reducible control-flow graph of basic
// blocks connected by conditional edges. A stack evaluator replays
// each block's instructions against an operand stack, producing
// qexpr nodes; the graph structuring engine then folds runs of blocks
// that share a common successor into conjunction/disjunction
// composites, resolving true/false edge polarity with a single local
// negation operator, until one root expression remains per region.
//
// All graph nodes for one analysis live in an arena addressed by
// index and are dropped wholesale when the analysis returns; nodes
// hold successor and predecessor links as plain indices, so the
// cyclic back-references never need individual ownership.
package decompile
