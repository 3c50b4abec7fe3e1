// Package querysql compiles structured query definitions to
// PostgreSQL-flavoured SQL text.
//
// Compilation is synchronous and allocation-scoped: one call consumes
// one QueryDef and produces one SQL string or a *QueryError. There is
// no shared mutable state between calls.
package querysql

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/bkovari/relinq/internal/schema"
)

// Compiler turns query definitions into SQL statements. The zero
// value is not usable; construct with NewCompiler.
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler creates a compiler. A nil logger falls back to the
// process default.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{logger: logger}
}

// Select compiles a SELECT statement.
func (c *Compiler) Select(def *QueryDef) (*Query, error) {
	token := compileToken()
	c.logger.Debug("compiling select query",
		"compile_id", token,
		"entities", len(def.Entities),
		"shape", def.Shape)

	q, err := compileSelect(def)
	if err != nil {
		c.logger.Debug("select compilation failed",
			"compile_id", token,
			"error", err)
		return nil, err
	}
	c.logger.Debug("select compilation complete",
		"compile_id", token,
		"sql_len", len(q.SQL))
	return q, nil
}

// InsertOrSelect compiles the combined insert-or-select statement for
// one record.
func (c *Compiler) InsertOrSelect(def *QueryDef, record *schema.Record) (*Query, error) {
	token := compileToken()
	c.logger.Debug("compiling insert-or-select query",
		"compile_id", token,
		"entity", record.Entity.Name)

	q, err := compileInsertOrSelect(def, record)
	if err != nil {
		c.logger.Debug("insert-or-select compilation failed",
			"compile_id", token,
			"error", err)
		return nil, err
	}
	c.logger.Debug("insert-or-select compilation complete",
		"compile_id", token,
		"sql_len", len(q.SQL))
	return q, nil
}

// compileToken tags one compile call's log records. UUIDv7 keeps
// tokens time-ordered in log output.
func compileToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
