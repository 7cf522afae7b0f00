package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/lsprpc"
)

func newTestServer(t *testing.T, schemaJSON string) (*Server, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(schemaJSON))
	}))
	t.Cleanup(srv.Close)

	conn := lsprpc.NewConn(new(bytes.Buffer), new(bytes.Buffer), nil, 1)
	s := New(conn, nil)

	res, err := s.handleInitialize(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	_ = res.(protocol.InitializeResult)
	return s, srv
}

func openDoc(t *testing.T, s *Server, uri protocol.DocumentURI, text string, version int32) {
	t.Helper()
	params, err := json.Marshal(protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Version: version, Text: text},
	})
	require.NoError(t, err)
	require.NoError(t, s.handleDidOpen(context.Background(), params))
}

func TestEndToEndValidInstanceProducesNoDiagnostics(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object","properties":{"name":{"type":"string"}}}`)
	uri := protocol.DocumentURI("file:///doc.json")
	openDoc(t, s, uri, `{"$schema":"`+srv.URL+`","name":"x"}`, 1)

	diags, err := s.runDiagnostics(context.Background(), uri, 1)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestEndToEndTypeMismatchProducesDiagnostic(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object","properties":{"name":{"type":"string"}}}`)
	uri := protocol.DocumentURI("file:///doc.json")
	openDoc(t, s, uri, `{"$schema":"`+srv.URL+`","name":42}`, 1)

	diags, err := s.runDiagnostics(context.Background(), uri, 1)
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, protocol.DiagnosticSeverityError, diags[0].Severity)
}

func TestEndToEndHoverOnKeyIncludesDescription(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object","properties":{"name":{"description":"person's name","type":"string"}}}`)
	uri := protocol.DocumentURI("file:///doc.json")
	text := `{"$schema":"` + srv.URL + `","name":"x"}`
	openDoc(t, s, uri, text, 1)

	// Cursor inside the "name" key string.
	nameKeyOffset := bytes.Index([]byte(text), []byte(`"name"`)) + 2
	pos := mustOffsetToPosition(t, text, nameKeyOffset)

	raw, err := json.Marshal(protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
	})
	require.NoError(t, err)

	result, err := s.handleHover(context.Background(), raw)
	require.NoError(t, err)
	hover, ok := result.(protocol.Hover)
	require.True(t, ok, "expected a hover result, got %#v", result)
	assert.Contains(t, hover.Contents.Value, "person's name")
	assert.Contains(t, hover.Contents.Value, "string")
}

func TestEndToEndCompletionOffersDeclaredProperties(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"number"}}}`)
	uri := protocol.DocumentURI("file:///doc.json")
	text := `{"$schema":"` + srv.URL + `",}`
	openDoc(t, s, uri, text, 1)

	offset := bytes.IndexByte([]byte(text), ',') + 1
	pos := mustOffsetToPosition(t, text, offset)

	raw, err := json.Marshal(protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
	})
	require.NoError(t, err)

	result, err := s.handleCompletion(context.Background(), raw)
	require.NoError(t, err)
	list, ok := result.(protocol.CompletionList)
	require.True(t, ok)
	var labels []string
	for _, item := range list.Items {
		labels = append(labels, item.Label)
	}
	assert.ElementsMatch(t, []string{"name", "age"}, labels)
}

func TestEndToEndCompletionOffersEnumValues(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object","properties":{"color":{"enum":["red","green","blue"]}}}`)
	uri := protocol.DocumentURI("file:///doc.json")
	text := `{"$schema":"` + srv.URL + `","color":}`
	openDoc(t, s, uri, text, 1)

	// Cursor in the empty value slot just before the closing brace.
	offset := bytes.LastIndexByte([]byte(text), '}')
	pos := mustOffsetToPosition(t, text, offset)

	raw, err := json.Marshal(protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
	})
	require.NoError(t, err)

	result, err := s.handleCompletion(context.Background(), raw)
	require.NoError(t, err)
	list, ok := result.(protocol.CompletionList)
	require.True(t, ok)
	var labels []string
	for _, item := range list.Items {
		labels = append(labels, item.Label)
	}
	assert.ElementsMatch(t, []string{`"red"`, `"green"`, `"blue"`}, labels)
}

func TestShutdownRejectsRequestsAndDropsEdits(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, `{"type":"object"}`)
	uri := protocol.DocumentURI("file:///doc.json")
	text := `{"$schema":"` + srv.URL + `","a":1}`
	openDoc(t, s, uri, text, 1)

	_, err := s.handleShutdown(context.Background(), nil)
	require.NoError(t, err)

	// Edits after shutdown are dropped without error; the document keeps
	// its pre-shutdown content and version.
	changeRaw, err := json.Marshal(protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: `{}`}},
	})
	require.NoError(t, err)
	require.NoError(t, s.handleDidChange(context.Background(), changeRaw))
	snap, ok := s.docs.Read(uri)
	require.True(t, ok)
	assert.EqualValues(t, 1, snap.Version)
	assert.Equal(t, text, snap.Text)

	// Requests after shutdown are rejected; only exit is still honored.
	hoverRaw, err := json.Marshal(protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: 0, Character: 2},
		},
	})
	require.NoError(t, err)
	_, err = s.handleHover(context.Background(), hoverRaw)
	assert.ErrorIs(t, err, lsprpc.ErrInvalidRequest)
	_, err = s.handleCompletion(context.Background(), hoverRaw)
	assert.ErrorIs(t, err, lsprpc.ErrInvalidRequest)
}

func TestEndToEndNetworkFailureSuppressesDiagnosticsAndRetries(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	conn := lsprpc.NewConn(new(bytes.Buffer), new(bytes.Buffer), nil, 1)
	s := New(conn, nil)
	_, err := s.handleInitialize(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	uri := protocol.DocumentURI("file:///doc.json")
	openDoc(t, s, uri, `{"$schema":"`+srv.URL+`","name":"x"}`, 1)

	diags, err := s.runDiagnostics(context.Background(), uri, 1)
	require.NoError(t, err)
	assert.Empty(t, diags)

	diags, err = s.runDiagnostics(context.Background(), uri, 1)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 1, hits, "second call within the cooldown must not refetch")
}

func mustOffsetToPosition(t *testing.T, text string, offset int) protocol.Position {
	t.Helper()
	line := bytes.Count([]byte(text[:offset]), []byte("\n"))
	lastNL := bytes.LastIndexByte([]byte(text[:offset]), '\n')
	col := offset - lastNL - 1
	return protocol.Position{Line: uint32(line), Character: uint32(col)}
}
