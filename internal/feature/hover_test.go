package feature_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/feature"
	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
	"github.com/jsonschemals/jsonschemals/internal/schema"
)

func TestHoverReturnsDescriptionForResolvedProperty(t *testing.T) {
	t.Parallel()

	doc, err := schema.ParseDocument([]byte(`{
		"properties": {"name": {"type": "string", "description": "the user's name"}}
	}`))
	require.NoError(t, err)
	nv := schema.NewNavigator(doc, "file:///s.json", nil)

	hover, ok := feature.Hover(nv, jsonscan.Context{Kind: jsonscan.Key, Path: jsonscan.Path{{Key: "name"}}})
	require.True(t, ok)
	assert.Contains(t, hover.Contents.Value, "the user's name")
	assert.Equal(t, protocol.Markdown, hover.Contents.Kind)
}

func TestHoverIncludesDefaultEnumAndExamples(t *testing.T) {
	t.Parallel()

	doc, err := schema.ParseDocument([]byte(`{
		"properties": {
			"level": {
				"description": "log verbosity",
				"type": "string",
				"default": "info",
				"enum": ["debug", "info", "warn"],
				"examples": ["warn"]
			}
		}
	}`))
	require.NoError(t, err)
	nv := schema.NewNavigator(doc, "file:///s.json", nil)

	hover, ok := feature.Hover(nv, jsonscan.Context{Kind: jsonscan.Value, Path: jsonscan.Path{{Key: "level"}}})
	require.True(t, ok)
	body := hover.Contents.Value
	assert.Contains(t, body, "log verbosity")
	assert.Contains(t, body, "`string`")
	assert.Contains(t, body, `Default: `+"`\"info\"`")
	assert.Contains(t, body, `"debug"`)
	assert.Contains(t, body, "Examples:")

	// Sections appear in a fixed order: description, type, default, enum,
	// examples.
	assert.Less(t, strings.Index(body, "log verbosity"), strings.Index(body, "Type:"))
	assert.Less(t, strings.Index(body, "Type:"), strings.Index(body, "Default:"))
	assert.Less(t, strings.Index(body, "Default:"), strings.Index(body, "Allowed values:"))
	assert.Less(t, strings.Index(body, "Allowed values:"), strings.Index(body, "Examples:"))
}

func TestHoverFalseOnUnknownContext(t *testing.T) {
	t.Parallel()

	doc, err := schema.ParseDocument([]byte(`{"properties":{}}`))
	require.NoError(t, err)
	nv := schema.NewNavigator(doc, "file:///s.json", nil)

	_, ok := feature.Hover(nv, jsonscan.Context{Kind: jsonscan.Unknown})
	assert.False(t, ok)
}
