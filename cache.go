package relinq

import (
	"sync"

	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/decompile"
)

// Cache memoizes compilation work across calls that reuse the same
// *bytecode.Program value, e.g. a predicate compiled repeatedly in a
// hot loop with different runtime parameter values.
//
// Keys are program identity (the pointer), not program value: two
// equal programs in different allocations compile independently.
// Structuring results are cached unconditionally. Compiled SQL is
// cached only for calls without external bindings, because binding
// values render into the SQL text; a cache hit is therefore always
// byte-identical to a fresh compile. The cache never evicts and is
// safe for concurrent lookup and insert. A nil *Cache disables
// caching entirely.
type Cache struct {
	mu    sync.RWMutex
	exprs map[*bytecode.Program]*decompile.CodeExpression
	sql   map[sqlKey]*Query
}

type sqlKey struct {
	program *bytecode.Program
	shape   string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		exprs: make(map[*bytecode.Program]*decompile.CodeExpression),
		sql:   make(map[sqlKey]*Query),
	}
}

func (c *Cache) lookupExpr(program *bytecode.Program) *decompile.CodeExpression {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exprs[program]
}

func (c *Cache) storeExpr(program *bytecode.Program, ce *decompile.CodeExpression) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exprs[program] = ce
}

func (c *Cache) lookupSQL(program *bytecode.Program, o *Options) *Query {
	if c == nil || len(o.Bindings) != 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sql[sqlKey{program: program, shape: o.Shape}]
}

func (c *Cache) storeSQL(program *bytecode.Program, o *Options, q *Query) {
	if c == nil || len(o.Bindings) != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sql[sqlKey{program: program, shape: o.Shape}] = q
}
