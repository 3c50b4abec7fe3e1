// Package bytecode defines the low-level instruction stream a query
// program arrives in, together with its symbol tables.
//
// The stream is the input contract of the compiler core: a host-side
// extractor lowers a predicate/projection definition into a Program
// (ordered instructions, constant/name/local/binding tables, and a
// jump-target resolution table) and the compiler core never re-enters
// the host environment afterwards.
//
// The package also ships an assembler (Builder) used by tests, the
// CLI fixture loader and host extractors, plus a YAML codec so
// programs can be stored as versionable fixtures.
package bytecode
