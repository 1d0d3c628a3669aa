package introspect

import "strings"

// ERD renders schemas and relationships as a mermaid erDiagram description.
// Output is deterministic for a given input so that repeated introspection of
// an unchanged database produces identical diagrams.
func ERD(schemas []Schema, fks []ForeignKey) string {
	var b strings.Builder
	b.WriteString("erDiagram\n")

	for _, schema := range schemas {
		for _, table := range schema.Tables {
			b.WriteString("    ")
			b.WriteString(sanitizeIdent(table.Name))
			b.WriteString(" {\n")
			for _, col := range table.Columns {
				b.WriteString("        ")
				b.WriteString(sanitizeType(col.Type))
				b.WriteString(" ")
				b.WriteString(sanitizeIdent(col.Name))
				if !col.Nullable {
					b.WriteString(" \"not null\"")
				}
				b.WriteString("\n")
			}
			b.WriteString("    }\n")
		}
	}

	for _, fk := range fks {
		b.WriteString("    ")
		b.WriteString(sanitizeIdent(fk.ToTable))
		b.WriteString(" ||--o{ ")
		b.WriteString(sanitizeIdent(fk.FromTable))
		b.WriteString(" : \"")
		b.WriteString(fk.FromColumn)
		b.WriteString("\"\n")
	}

	return b.String()
}

// sanitizeIdent keeps mermaid identifiers to word characters.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// sanitizeType collapses multi-word types ("DOUBLE PRECISION") into a single
// mermaid-safe token.
func sanitizeType(s string) string {
	if s == "" {
		return "any"
	}
	return sanitizeIdent(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}
