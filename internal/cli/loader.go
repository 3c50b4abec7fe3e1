package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/schema"
)

// Fixture is one loaded query fixture: the entity declarations in
// alias declaration order, the instruction program, and optionally an
// insert record for insert-or-select fixtures.
type Fixture struct {
	Shape    string
	Entities []*schema.Entity
	Bindings map[string]any
	Record   *schema.Record
	Program  *bytecode.Program
}

// fixtureDoc is the YAML surface. The program section is decoded
// separately by the bytecode codec from the same document.
type fixtureDoc struct {
	Shape    string         `yaml:"shape"`
	Entities []entityDoc    `yaml:"entities"`
	Bindings map[string]any `yaml:"bindings"`
	Insert   *insertDoc     `yaml:"insert"`
}

type entityDoc struct {
	Name    string   `yaml:"name"`
	Alias   string   `yaml:"alias"`
	Columns []string `yaml:"columns"`
}

type insertDoc struct {
	Entity string         `yaml:"entity"`
	Values map[string]any `yaml:"values"`
}

// LoadFixture reads and assembles a query fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var doc fixtureDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("fixture %s declares no entities", path)
	}

	program, err := bytecode.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}

	f := &Fixture{
		Shape:    doc.Shape,
		Bindings: doc.Bindings,
		Program:  program,
	}
	byName := make(map[string]*schema.Entity, len(doc.Entities))
	for _, e := range doc.Entities {
		entity := schema.NewEntity(e.Name, e.Columns...)
		f.Entities = append(f.Entities, entity)
		byName[e.Name] = entity
	}

	if doc.Insert != nil {
		entity, ok := byName[doc.Insert.Entity]
		if !ok {
			return nil, fmt.Errorf("fixture %s inserts into undeclared entity %q", path, doc.Insert.Entity)
		}
		f.Record = schema.NewRecord(entity, doc.Insert.Values)
	}
	return f, nil
}
