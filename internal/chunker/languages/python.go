package languages

import (
	"github.com/smacker/go-tree-sitter/python"

	"github.com/example/semcode-mcp/internal/chunker"
)

// RegisterPython wires the Python grammar into r.
func RegisterPython(r *chunker.Registry) {
	r.Register("python", &chunker.LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
		Extensions: []string{"py", "pyi"},
	})
}
