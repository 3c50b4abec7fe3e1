// Package qexpr defines the expression tree synthesized from a query
// program's instruction stream.
//
// Expression is a sealed interface: only types in this package
// implement it, which lets downstream visitors (negation, structural
// equality, SQL rendering) use exhaustive type switches.
//
// Expressions are immutable values. They are built once by the
// decompiler, possibly rewritten structurally by the query compiler
// (join stripping, WHERE/HAVING partitioning), and rendered to text.
// Each variant carries a fixed precedence used only to decide where a
// re-serialization needs parentheses.
package qexpr
