// Package languages registers the tree-sitter grammars the chunker supports.
package languages

import (
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/example/semcode-mcp/internal/chunker"
)

// RegisterGo wires the Go grammar into r.
func RegisterGo(r *chunker.Registry) {
	r.Register("go", &chunker.LanguageSpec{
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(method_declaration name: (field_identifier) @name) @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
			(const_declaration) @chunk
			(var_declaration) @chunk
		`,
		Extensions: []string{"go"},
	})
}
