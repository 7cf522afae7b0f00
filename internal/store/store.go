// Package store holds the open documents: a concurrent map from URI to
// document state, incremental edit application, and extraction of each
// document's declared $schema URL.
//
// One coarse map mutex guards membership, and each Document owns its own
// mutex for content mutation, so readers of distinct documents never
// contend.
package store

import (
	"fmt"
	"sync"

	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/rope"
)

// Document is a snapshot-safe handle on one open document's state.
type Document struct {
	mu        sync.RWMutex
	uri       protocol.DocumentURI
	text      *rope.Rope
	version   int32
	schemaURL string
	hasSchema bool
}

// Snapshot is a cheap, immutable view of a document at a point in time, fit
// for concurrent readers (hover/completion/diagnostics).
type Snapshot struct {
	URI       protocol.DocumentURI
	Text      string
	Version   int32
	SchemaURL string
	HasSchema bool
}

func (d *Document) snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		URI:       d.uri,
		Text:      d.text.String(),
		Version:   d.version,
		SchemaURL: d.schemaURL,
		HasSchema: d.hasSchema,
	}
}

func (d *Document) reextractSchema() {
	url, ok := extractSchemaURL(d.text.Bytes(), string(d.uri))
	d.schemaURL = url
	d.hasSchema = ok
}

// Store holds all currently open documents.
type Store struct {
	mu   sync.Mutex
	docs map[protocol.DocumentURI]*Document
}

// NewStore returns an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[protocol.DocumentURI]*Document)}
}

// Open creates or replaces the document at uri. It is idempotent for the
// same version and replaces the state on a higher version.
func (s *Store) Open(uri protocol.DocumentURI, text string, version int32) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &Document{uri: uri}
		s.docs[uri] = doc
	}
	s.mu.Unlock()

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if ok && version <= doc.version && doc.text != nil {
		return // idempotent re-open at same or older version
	}
	doc.text = rope.New(text)
	doc.version = version
	doc.reextractSchema()
}

// Change applies edits in order to the document at uri and re-extracts its
// $schema URL. Edits with a nil Range are full-document replacements.
func (s *Store) Change(uri protocol.DocumentURI, edits []protocol.TextDocumentContentChangeEvent, version int32) error {
	doc := s.get(uri)
	if doc == nil {
		return fmt.Errorf("change: unknown document %s", uri)
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	for _, e := range edits {
		if err := doc.text.ApplyEdit(&e.Range, e.Text); err != nil {
			return fmt.Errorf("apply edit to %s: %w", uri, err)
		}
	}
	doc.version = version
	doc.reextractSchema()
	return nil
}

// Close removes the document at uri. The caller is responsible for
// cancelling any pending validation job for uri.
func (s *Store) Close(uri protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Read returns a coherent snapshot of the document at uri, or false if it is
// not open.
func (s *Store) Read(uri protocol.DocumentURI) (Snapshot, bool) {
	doc := s.get(uri)
	if doc == nil {
		return Snapshot{}, false
	}
	return doc.snapshot(), true
}

func (s *Store) get(uri protocol.DocumentURI) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[uri]
}
