// Package filter is the sole producer of the predicate strings spliced into
// the vector store's WHERE clauses. It generalizes the single inline
// sanitizeFTSQuery helper the storage layer used to carry directly into the
// dedicated whitelist-based builder the safety layer requires: every
// character a caller supplies either passes through a fixed
// separator/glob-to-underscore translation or causes the whole filter to be
// rejected outright. No user-supplied character ever reaches a WHERE clause
// without having first been through that translation and then re-validated
// against the whitelist, so quoting is this package's responsibility alone.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/example/semcode-mcp/internal/pathutil"
	"github.com/example/semcode-mcp/pkg/types"
)

// maxPatternLength bounds both Path and FilePattern before translation; a
// legitimate path or glob never approaches this, so it exists only to keep
// pathological input from doing needless regex/string work.
const maxPatternLength = 500

// patternWhitelist is checked against the *sanitized* string, after every
// known-safe path separator, dot, and glob metacharacter has been rewritten
// to '_' or '%'. Anything that still doesn't match — a quote, a semicolon,
// whitespace, SQL keywords — means the input carried a character the
// translation doesn't account for, and the filter is rejected rather than
// spliced in partially sanitized.
var patternWhitelist = regexp.MustCompile(`^[A-Za-z0-9_\-%]+$`)

// languageWhitelist bounds the value substituted into a `language = ?`
// equality predicate once file_pattern resolves to a known extension.
var languageWhitelist = regexp.MustCompile(`^[a-z]+$`)

// extensionLanguage is the closed extension-to-language table file_pattern
// values shaped like "*.ext" are translated through, kept in step with the
// grammars internal/chunker/languages registers.
var extensionLanguage = map[string]string{
	"go":  "go",
	"py":  "python",
	"pyi": "python",
	"js":  "javascript",
	"jsx": "javascript",
	"mjs": "javascript",
	"cjs": "javascript",
	"ts":  "typescript",
	"tsx": "typescript",
}

// simpleExtensionPattern matches a file_pattern of the exact shape "*.ext".
var simpleExtensionPattern = regexp.MustCompile(`^\*\.([A-Za-z0-9]+)$`)

// Options narrows a search to a subset of the indexed chunks. Path is a
// directory prefix (e.g. "src/auth"); FilePattern is a glob matched against
// the chunk id (e.g. "*.ts", "internal/**").
type Options struct {
	Path        string
	FilePattern string
}

// Predicate is a WHERE-clause fragment (referencing the `c` chunks and `f`
// files table aliases used throughout internal/storage) plus its positional
// arguments. An empty Predicate (SQL == "") means "no filter"; callers
// should skip splicing it in.
type Predicate struct {
	SQL  string
	Args []interface{}
}

// invalidFilter wraps input in the closed invalid-filter error kind so
// callers can distinguish it from every other failure without string
// matching.
func invalidFilter(format string, args ...interface{}) error {
	return types.NewOperationalError(types.FailureInvalidFilter, fmt.Errorf(format, args...))
}

// ValidateFilterPattern reports whether p is safe to translate into a LIKE
// pattern: within the length bound and, once separators/dots/globs are
// rewritten to '_'/'%', matching patternWhitelist with nothing left over.
func ValidateFilterPattern(p string) bool {
	if p == "" || len(p) > maxPatternLength {
		return false
	}
	return patternWhitelist.MatchString(sanitizeGlob(p))
}

// Build turns Options into a Predicate, or an *types.OperationalError tagged
// types.FailureInvalidFilter when either field fails validation. An empty
// Options yields an empty Predicate and a nil error.
func Build(opts Options) (Predicate, error) {
	var clauses []string
	var args []interface{}

	if opts.Path != "" {
		if len(opts.Path) > maxPatternLength {
			return Predicate{}, invalidFilter("path filter exceeds %d characters", maxPatternLength)
		}
		sanitized := pathutil.SanitizeForID(opts.Path)
		if !patternWhitelist.MatchString(sanitized) {
			return Predicate{}, invalidFilter("path filter contains disallowed characters: %q", opts.Path)
		}
		clauses = append(clauses, "c.id LIKE ?")
		args = append(args, sanitized+"%")
	}

	if opts.FilePattern != "" {
		if len(opts.FilePattern) > maxPatternLength {
			return Predicate{}, invalidFilter("file_pattern exceeds %d characters", maxPatternLength)
		}

		if m := simpleExtensionPattern.FindStringSubmatch(opts.FilePattern); m != nil {
			if lang, ok := extensionLanguage[strings.ToLower(m[1])]; ok {
				if !languageWhitelist.MatchString(lang) {
					return Predicate{}, invalidFilter("resolved language %q is invalid", lang)
				}
				clauses = append(clauses, "f.language = ?")
				args = append(args, lang)
				return finish(clauses, args), nil
			}
			// Unknown extension: fall through to the generic glob path below.
		}

		sanitized := sanitizeGlob(opts.FilePattern)
		if !patternWhitelist.MatchString(sanitized) {
			return Predicate{}, invalidFilter("file_pattern contains disallowed characters: %q", opts.FilePattern)
		}
		clauses = append(clauses, "c.id LIKE ?")
		args = append(args, "%"+sanitized)
	}

	return finish(clauses, args), nil
}

func finish(clauses []string, args []interface{}) Predicate {
	if len(clauses) == 0 {
		return Predicate{}
	}
	return Predicate{SQL: strings.Join(clauses, " AND "), Args: args}
}

// sanitizeGlob rewrites the glob metacharacters build_filter's file_pattern
// rule recognizes ("**" and "*" to '%', "?" to '_') and, like path
// normalization, path separators and dots to '_'. "**" is rewritten before
// "*" so a recursive-glob token collapses to a single '%' rather than two.
func sanitizeGlob(s string) string {
	s = strings.ReplaceAll(s, "**", "%")
	s = strings.ReplaceAll(s, "*", "%")
	s = strings.ReplaceAll(s, "?", "_")
	return pathutil.SanitizeForID(s)
}

// ftsOperatorPattern matches FTS5's reserved Boolean keywords so they can be
// escaped rather than interpreted as query syntax.
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// SanitizeFTSQuery escapes characters and keywords that carry special
// meaning in an FTS5 MATCH expression, so free-form user query text can
// never be used to inject boolean logic or malformed query syntax into the
// full-text search path.
func SanitizeFTSQuery(query string) string {
	if query == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		`"`, `\"`,
		`*`, `\*`,
		`(`, `\(`,
		`)`, `\)`,
	)
	escaped := replacer.Replace(query)
	return ftsOperatorPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		return `\` + match
	})
}
