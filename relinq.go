// Package relinq compiles declaratively expressed relational queries
// into PostgreSQL-flavoured SQL text.
//
// A query arrives as a basic-block instruction stream (the filter and
// join predicate plus the projection, see internal/bytecode) together
// with the entities it ranges over. Compilation runs two stages:
// structuring, which reconstructs expression trees from the control
// flow graph, and query compilation, which extracts joins, partitions
// WHERE from HAVING, resolves marker calls and renders SQL.
package relinq

import (
	"log/slog"

	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/decompile"
	"github.com/bkovari/relinq/internal/querysql"
	"github.com/bkovari/relinq/internal/schema"
)

// Query is a compiled statement: the SQL text plus the result shape
// identifier for callers that map rows back to objects.
type Query = querysql.Query

// Options adjusts one compile call. The zero value works.
type Options struct {
	// Bindings supplies values for external references captured by the
	// query. A *Query value renders as a parenthesized subquery.
	Bindings map[string]any

	// Shape names the result shape carried through to the compiled
	// query.
	Shape string

	// Logger receives per-compile debug records. Nil uses the process
	// default.
	Logger *slog.Logger

	// Cache memoizes structuring and compilation results across calls
	// that reuse the same *bytecode.Program. Nil disables caching.
	Cache *Cache
}

// Select compiles the query expressed by program over the given
// entities into a SELECT statement.
//
// The program's declared local variables become the entity aliases,
// 1:1 with entities in declaration order.
func Select(program *bytecode.Program, entities []*schema.Entity, opts *Options) (*Query, error) {
	o := options(opts)

	if q := o.Cache.lookupSQL(program, o); q != nil {
		return q, nil
	}

	def, err := buildQueryDef(program, entities, o)
	if err != nil {
		return nil, err
	}
	q, err := querysql.NewCompiler(o.Logger).Select(def)
	if err != nil {
		return nil, err
	}
	o.Cache.storeSQL(program, o, q)
	return q, nil
}

// InsertOrSelect compiles the combined "return the matching row or
// insert record and return it" statement. The query must range over
// exactly the record's entity, without joins, aggregation or
// ordering.
func InsertOrSelect(record *schema.Record, program *bytecode.Program, entities []*schema.Entity, opts *Options) (*Query, error) {
	o := options(opts)
	def, err := buildQueryDef(program, entities, o)
	if err != nil {
		return nil, err
	}
	return querysql.NewCompiler(o.Logger).InsertOrSelect(def, record)
}

func options(opts *Options) *Options {
	if opts == nil {
		return &Options{}
	}
	return opts
}

// buildQueryDef runs the structuring stage and assembles the query
// compiler's input.
func buildQueryDef(program *bytecode.Program, entities []*schema.Entity, o *Options) (*querysql.QueryDef, error) {
	ce := o.Cache.lookupExpr(program)
	if ce == nil {
		var err error
		if ce, err = decompile.Analyze(program); err != nil {
			return nil, err
		}
		o.Cache.storeExpr(program, ce)
	}

	projection := ce.Projection
	if projection == nil {
		projection = ce.Return
	}
	return &querysql.QueryDef{
		Entities:   entities,
		Aliases:    ce.LocalVars,
		Bindings:   o.Bindings,
		Predicate:  ce.Predicate,
		Projection: projection,
		Shape:      o.Shape,
	}, nil
}
