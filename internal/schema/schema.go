// Package schema describes the entities (tables) a query ranges over.
//
// Descriptors are declared once per entity type and shared across
// compile calls; they carry only what the compiler needs: the table
// name and the column list in declaration order.
package schema

// Entity is a table descriptor.
type Entity struct {
	Name    string
	Columns []string
}

// NewEntity declares a table with its columns in declaration order.
func NewEntity(name string, columns ...string) *Entity {
	return &Entity{Name: name, Columns: columns}
}

// HasColumn reports whether the entity declares the named column.
func (e *Entity) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// defaultValue is the sentinel type behind Default.
type defaultValue struct{}

// Default marks a column whose value should come from the table's
// column default. Columns set to Default are omitted from the insert
// column list entirely.
var Default any = defaultValue{}

// IsDefault reports whether v is the Default sentinel.
func IsDefault(v any) bool {
	_, ok := v.(defaultValue)
	return ok
}

// Record is one object to insert: an entity plus per-column values.
// Columns absent from Values are treated as Default.
type Record struct {
	Entity *Entity
	Values map[string]any
}

// NewRecord builds an insert record for the given entity.
func NewRecord(e *Entity, values map[string]any) *Record {
	return &Record{Entity: e, Values: values}
}

// InsertColumns returns the columns to include in an INSERT column
// list, in entity declaration order: every declared column whose
// value is present and not the Default sentinel.
func (r *Record) InsertColumns() []string {
	cols := make([]string, 0, len(r.Entity.Columns))
	for _, c := range r.Entity.Columns {
		v, ok := r.Values[c]
		if !ok || IsDefault(v) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}
