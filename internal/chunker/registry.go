package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec pairs a tree-sitter grammar with the S-expression query used
// to capture top-level definitions in that language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query must tag the outer definition node @chunk and, when available,
	// its identifier @name.
	Query      string
	Extensions []string
}

// Registry maps file extensions and language names to grammars. Lookups are
// far more frequent than registrations (which happen once at startup), so
// it favors a read-biased RWMutex.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]*LanguageSpec
	byLang map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]*LanguageSpec),
		byLang: make(map[string]*LanguageSpec),
	}
}

// Register adds a language spec under name, indexing it by every declared
// extension.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[name] = spec
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the spec and language name registered for path's
// extension, or (nil, "") if no grammar covers it.
func (r *Registry) Lookup(path string) (spec *LanguageSpec, language string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byExt[ext]
	if !ok {
		return nil, ""
	}
	for name, sp := range r.byLang {
		if sp == s {
			return s, name
		}
	}
	return s, ext
}

// Supported reports whether path's extension has a registered grammar.
func (r *Registry) Supported(path string) bool {
	spec, _ := r.Lookup(path)
	return spec != nil
}

// Extensions returns the set of every registered file extension.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
