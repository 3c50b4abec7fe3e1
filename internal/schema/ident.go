package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// ShapeIdent derives an exported identifier for a result shape from a
// snake_case table or shape name: "person_city" becomes "PersonCity".
// Already-cased input passes through with its first letter raised.
func ShapeIdent(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(titleCaser.String(p))
	}
	return b.String()
}
