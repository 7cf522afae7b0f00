package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/store"
)

func TestOpenThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	uri := protocol.DocumentURI("file:///doc.json")
	text := `{"$schema":"file:///s.json","name":"x"}`
	s.Open(uri, text, 1)

	snap, ok := s.Read(uri)
	require.True(t, ok)
	assert.Equal(t, text, snap.Text)
	assert.EqualValues(t, 1, snap.Version)
	assert.Equal(t, "file:///s.json", snap.SchemaURL)
	assert.True(t, snap.HasSchema)
}

func TestIdentityEditSequencePreservesContentAndSchema(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	uri := protocol.DocumentURI("file:///doc.json")
	original := `{"$schema":"file:///s.json","a":1}`
	s.Open(uri, original, 1)

	err := s.Change(uri, []protocol.TextDocumentContentChangeEvent{
		{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 32},
				End:   protocol.Position{Line: 0, Character: 33},
			},
			Text: "99",
		},
		{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 32},
				End:   protocol.Position{Line: 0, Character: 34},
			},
			Text: "1",
		},
	}, 2)
	require.NoError(t, err)

	snap, ok := s.Read(uri)
	require.True(t, ok)
	assert.Equal(t, original, snap.Text)
	assert.Equal(t, "file:///s.json", snap.SchemaURL)
}

func TestCloseRemovesDocument(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	uri := protocol.DocumentURI("file:///doc.json")
	s.Open(uri, `{}`, 1)
	s.Close(uri)

	_, ok := s.Read(uri)
	assert.False(t, ok)
}

func TestChangeUnknownDocumentErrors(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	err := s.Change(protocol.DocumentURI("file:///missing.json"), nil, 1)
	assert.Error(t, err)
}

func TestOpenIsIdempotentForSameVersion(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	uri := protocol.DocumentURI("file:///doc.json")
	s.Open(uri, `{"a":1}`, 5)
	s.Open(uri, `{"a":2}`, 5) // same version: ignored

	snap, ok := s.Read(uri)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, snap.Text)
}

func TestFullReplacementChange(t *testing.T) {
	t.Parallel()

	s := store.NewStore()
	uri := protocol.DocumentURI("file:///doc.json")
	s.Open(uri, `{"a":1}`, 1)

	err := s.Change(uri, []protocol.TextDocumentContentChangeEvent{
		{Text: `{"b":2}`},
	}, 2)
	require.NoError(t, err)

	snap, ok := s.Read(uri)
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, snap.Text)
}
