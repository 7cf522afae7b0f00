package feature_test

import (
	"testing"

	"github.com/kaptinlin/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsonschemals/jsonschemals/internal/feature"
	"github.com/jsonschemals/jsonschemals/internal/rope"
)

func compileSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	s, err := compiler.Compile([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestDiagnoseValidDocumentHasNoDiagnostics(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
	raw := []byte(`{"name":"x"}`)

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestDiagnoseReportsTypeMismatch(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object","properties":{"age":{"type":"number"}}}`)
	raw := []byte(`{"age":"not a number"}`)

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	require.NotEmpty(t, diags)
}

func TestDiagnoseReportsMissingRequired(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object","required":["name"]}`)
	raw := []byte(`{}`)

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	require.NotEmpty(t, diags)
}

func TestDiagnoseMalformedJSONReportsSingleDiagnostic(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object"}`)
	raw := []byte(`{"a":`)

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	require.Len(t, diags, 1)
}

func TestDiagnoseMalformedJSONPointsAtErrorLocation(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object"}`)
	// The syntax error is at the '}' following the dangling colon, well
	// past the start of the document.
	raw := []byte(`{"a":1,"b":}`)

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Zero(t, diags[0].Range.Start.Line)
	assert.Greater(t, diags[0].Range.Start.Character, uint32(6),
		"diagnostic must sit at the parse failure, not the document start")
}

func TestDiagnoseMalformedJSONAcrossLinesReportsErrorLine(t *testing.T) {
	t.Parallel()

	compiled := compileSchema(t, `{"type":"object"}`)
	raw := []byte("{\n  \"a\": 1,\n  \"b\": ]\n}")

	diags, err := feature.Diagnose(raw, compiled, rope.New(string(raw)))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Greater(t, diags[0].Range.Start.Line, uint32(0),
		"diagnostic must sit on the line of the parse failure")
}
