package filter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/semcode-mcp/internal/filter"
	"github.com/example/semcode-mcp/pkg/types"
)

func TestBuild_Empty(t *testing.T) {
	p, err := filter.Build(filter.Options{})
	require.NoError(t, err)
	assert.Empty(t, p.SQL)
	assert.Empty(t, p.Args)
}

// S2 — Extension filter: "*.ts" resolves to a language equality, not a LIKE.
func TestBuild_FilePatternExtensionResolvesToLanguage(t *testing.T) {
	p, err := filter.Build(filter.Options{FilePattern: "*.ts"})
	require.NoError(t, err)
	assert.Equal(t, "f.language = ?", p.SQL)
	assert.Equal(t, []interface{}{"typescript"}, p.Args)
}

func TestBuild_FilePatternUnknownExtensionFallsBackToGlob(t *testing.T) {
	p, err := filter.Build(filter.Options{FilePattern: "*.rs"})
	require.NoError(t, err)
	assert.Equal(t, "c.id LIKE ?", p.SQL)
	assert.Equal(t, []interface{}{"%%_rs"}, p.Args)
}

// S3 — Path prefix filter: "src_auth" becomes an id-prefix LIKE.
func TestBuild_PathPrefix(t *testing.T) {
	p, err := filter.Build(filter.Options{Path: "src_auth"})
	require.NoError(t, err)
	assert.Equal(t, "c.id LIKE ?", p.SQL)
	assert.Equal(t, []interface{}{"src_auth%"}, p.Args)
}

func TestBuild_PathNormalizesSeparatorsAndDots(t *testing.T) {
	p, err := filter.Build(filter.Options{Path: "src/auth.v2"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"src_auth_v2%"}, p.Args)
}

func TestBuild_GenericGlob(t *testing.T) {
	p, err := filter.Build(filter.Options{FilePattern: "**/handler.go"})
	require.NoError(t, err)
	assert.Equal(t, "c.id LIKE ?", p.SQL)
	assert.Equal(t, []interface{}{"%%_handler_go"}, p.Args)
}

func TestBuild_PathAndFilePatternJoinedByAND(t *testing.T) {
	p, err := filter.Build(filter.Options{Path: "src", FilePattern: "*.go"})
	require.NoError(t, err)
	assert.Contains(t, p.SQL, " AND ")
	assert.Len(t, p.Args, 2)
}

// Property 7 — SQL-injection payload corpus must raise invalid-filter for
// both path and file_pattern, and ValidateFilterPattern must reject them.
func TestBuild_RejectsInjectionPayloads(t *testing.T) {
	payloads := []string{
		`' OR '1'='1`,
		`'; DROP TABLE--`,
		`' UNION SELECT * FROM chunks--`,
		`*.ts'; DROP TABLE--`,
		"a\x00b",
		"path with spaces",
		`"; --`,
	}

	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			_, err := filter.Build(filter.Options{Path: p})
			require.Error(t, err)
			assertInvalidFilter(t, err)

			_, err = filter.Build(filter.Options{FilePattern: p})
			require.Error(t, err)
			assertInvalidFilter(t, err)

			assert.False(t, filter.ValidateFilterPattern(p))
		})
	}
}

// S5 — Injection attempt via the tool surface's file_pattern input.
func TestBuild_S5InjectionAttempt(t *testing.T) {
	_, err := filter.Build(filter.Options{FilePattern: "*.ts'; DROP TABLE--"})
	require.Error(t, err)
	assertInvalidFilter(t, err)
}

func TestValidateFilterPattern_AcceptsLegitimatePatterns(t *testing.T) {
	assert.True(t, filter.ValidateFilterPattern("*.ts"))
	assert.True(t, filter.ValidateFilterPattern("src/auth"))
	assert.True(t, filter.ValidateFilterPattern("internal/**/*.go"))
}

func TestBuild_RejectsOverlongPattern(t *testing.T) {
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	_, err := filter.Build(filter.Options{Path: string(long)})
	require.Error(t, err)
	assertInvalidFilter(t, err)
}

func assertInvalidFilter(t *testing.T, err error) {
	t.Helper()
	var opErr *types.OperationalError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, types.FailureInvalidFilter, opErr.Kind)
}

func TestSanitizeFTSQuery(t *testing.T) {
	out := filter.SanitizeFTSQuery(`parse OR DROP TABLE "x"`)
	assert.NotContains(t, out, ` OR `)
	assert.Contains(t, out, `\OR`)
	assert.Contains(t, out, `\"`)
}

func TestSanitizeFTSQuery_Empty(t *testing.T) {
	assert.Empty(t, filter.SanitizeFTSQuery(""))
}
