// Package server wires the document store, position analyzer, schema
// loader/cache/navigator, feature engines, and diagnostic orchestrator to
// the lsprpc dispatch table, binding each supported LSP method to its
// handler.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/jsonschemals/jsonschemals/internal/feature"
	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
	"github.com/jsonschemals/jsonschemals/internal/lsprpc"
	"github.com/jsonschemals/jsonschemals/internal/orchestrator"
	"github.com/jsonschemals/jsonschemals/internal/rope"
	"github.com/jsonschemals/jsonschemals/internal/schema"
	"github.com/jsonschemals/jsonschemals/internal/settings"
	"github.com/jsonschemals/jsonschemals/internal/store"
	"github.com/jsonschemals/jsonschemals/internal/version"
)

// triggerCharacters are the characters that cause the client to re-request
// completion: a quote opens a key or string value, a colon precedes a
// value, and a comma precedes the next key or element.
var triggerCharacters = []string{"\"", ":", ","}

// Server holds every piece of server-instance state: the open-document
// store, the schema cache (constructed once initialize supplies
// schema_ttl_secs/schema_cache_capacity), and the diagnostic orchestrator.
// There is exactly one Server per connection and no package-level mutable
// state.
type Server struct {
	log   *zap.Logger
	conn  *lsprpc.Conn
	docs  *store.Store
	orch  *orchestrator.Orchestrator
	cache *schema.Cache

	// shuttingDown is set by the shutdown request. After that, mutating
	// text-sync notifications are dropped and hover/completion requests
	// are rejected; only exit (and didClose cleanup) is still honored.
	shuttingDown atomic.Bool
}

// New returns a Server that will dispatch over conn. The schema cache is
// constructed once initialize decodes its options; until then, hover,
// completion, and diagnostics requests that arrive out of sequence degrade
// gracefully to empty results rather than panicking.
func New(conn *lsprpc.Conn, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:  log,
		conn: conn,
		docs: store.NewStore(),
	}
	s.orch = orchestrator.New(s.runDiagnostics, s.publishDiagnostics, s.currentVersion)
	s.register()
	return s
}

func (s *Server) register() {
	s.conn.HandleMethod(protocol.MethodInitialize, s.handleInitialize)
	s.conn.HandleNotification(protocol.MethodInitialized, s.handleInitialized)
	s.conn.HandleMethod(protocol.MethodShutdown, s.handleShutdown)
	s.conn.HandleNotification(protocol.MethodExit, s.handleExit)
	s.conn.HandleNotification(protocol.MethodTextDocumentDidOpen, s.handleDidOpen)
	s.conn.HandleNotification(protocol.MethodTextDocumentDidChange, s.handleDidChange)
	s.conn.HandleNotification(protocol.MethodTextDocumentDidClose, s.handleDidClose)
	s.conn.HandleMethod(protocol.MethodTextDocumentHover, s.handleHover)
	s.conn.HandleMethod(protocol.MethodTextDocumentCompletion, s.handleCompletion)
}

func (s *Server) handleInitialize(_ context.Context, raw json.RawMessage) (any, error) {
	var params protocol.InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("server: decode initialize params: %w", err)
	}

	optsRaw, err := json.Marshal(params.InitializationOptions)
	if err != nil {
		return nil, fmt.Errorf("server: re-encode initializationOptions: %w", err)
	}
	opts, err := settings.Decode(optsRaw)
	if err != nil {
		s.log.Warn("ignoring malformed initializationOptions", zap.Error(err))
		opts, _ = settings.Decode(nil)
	}

	loader := schema.NewLoader(nil, s.log)
	s.cache = schema.NewCache(loader, opts.TTL(), opts.CacheCapacity(), s.log)

	s.log.Info("initialized",
		zap.Int64("schema_ttl_secs", opts.SchemaTTLSecs),
		zap.Int("schema_cache_capacity", opts.SchemaCacheCapacity),
	)

	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncKindIncremental,
			HoverProvider:    true,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: triggerCharacters,
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    "jsonschemals",
			Version: version.Version(),
		},
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) error { return nil }

func (s *Server) handleShutdown(context.Context, json.RawMessage) (any, error) {
	s.shuttingDown.Store(true)
	s.orch.Shutdown()
	return nil, nil
}

func (s *Server) handleExit(context.Context, json.RawMessage) error { return nil }

func (s *Server) handleDidOpen(_ context.Context, raw json.RawMessage) error {
	if s.shuttingDown.Load() {
		return nil
	}
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	doc := params.TextDocument
	s.docs.Open(doc.URI, doc.Text, doc.Version)
	s.orch.RunNow(doc.URI, doc.Version)
	return nil
}

func (s *Server) handleDidChange(_ context.Context, raw json.RawMessage) error {
	if s.shuttingDown.Load() {
		return nil
	}
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	ver := params.TextDocument.Version
	if err := s.docs.Change(uri, params.ContentChanges, ver); err != nil {
		return err
	}
	s.orch.Schedule(uri, ver)
	return nil
}

func (s *Server) handleDidClose(_ context.Context, raw json.RawMessage) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	s.orch.Cancel(uri)
	s.docs.Close(uri)
	return nil
}

func (s *Server) handleHover(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.shuttingDown.Load() {
		return nil, lsprpc.ErrInvalidRequest
	}
	var params protocol.HoverParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	snap, ok := s.docs.Read(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	posCtx, ok := s.analyze(snap, params.Position)
	if !ok {
		return nil, nil
	}

	nv, ok := s.navigatorFor(ctx, snap)
	if !ok {
		return nil, nil
	}
	hover, ok := feature.Hover(nv, posCtx)
	if !ok {
		return nil, nil
	}
	return hover, nil
}

func (s *Server) handleCompletion(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.shuttingDown.Load() {
		return nil, lsprpc.ErrInvalidRequest
	}
	var params protocol.CompletionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	snap, ok := s.docs.Read(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	posCtx, ok := s.analyze(snap, params.Position)
	if !ok {
		return protocol.CompletionList{IsIncomplete: false, Items: nil}, nil
	}

	nv, ok := s.navigatorFor(ctx, snap)
	if !ok {
		return protocol.CompletionList{IsIncomplete: false, Items: nil}, nil
	}

	items := feature.Completion(nv, posCtx)
	if posCtx.Kind == jsonscan.KeyStart {
		items = excludeExistingKeys(items, feature.ExistingKeys([]byte(snap.Text), posCtx.Path))
	}
	return protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

func excludeExistingKeys(items []protocol.CompletionItem, existing map[string]bool) []protocol.CompletionItem {
	if len(existing) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if !existing[item.Label] {
			out = append(out, item)
		}
	}
	return out
}

// analyze converts an LSP position to a jsonscan.Context over the
// document's current text.
func (s *Server) analyze(snap store.Snapshot, pos protocol.Position) (jsonscan.Context, bool) {
	r := rope.New(snap.Text)
	offset, err := r.PositionToOffset(pos)
	if err != nil {
		return jsonscan.Context{}, false
	}
	posCtx := jsonscan.Analyze([]byte(snap.Text), offset)
	if posCtx.Kind == jsonscan.Unknown {
		return posCtx, false
	}
	return posCtx, true
}

// navigatorFor resolves snap's declared schema and returns a Navigator
// rooted on it, loading (and caching) the schema document if necessary.
func (s *Server) navigatorFor(ctx context.Context, snap store.Snapshot) (*schema.Navigator, bool) {
	if !snap.HasSchema || s.cache == nil {
		return nil, false
	}
	_, raw, err := s.cache.Get(ctx, snap.SchemaURL)
	if err != nil || raw == nil {
		return nil, false
	}
	root, err := schema.ParseDocument(raw)
	if err != nil {
		return nil, false
	}
	nv := schema.NewNavigator(root, snap.SchemaURL, s.resolveExternalSchema(ctx))
	return nv, true
}

// resolveExternalSchema returns the Navigator callback used to fetch a
// $ref target outside the document's own root schema, routed through the
// same cache as the initial fetch so repeated refs to the same external
// schema reuse one cached, compiled entry.
func (s *Server) resolveExternalSchema(ctx context.Context) func(string) (map[string]any, error) {
	return func(url string) (map[string]any, error) {
		_, raw, err := s.cache.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		return schema.ParseDocument(raw)
	}
}

// runDiagnostics is the orchestrator's DiagnosticsFunc: validate the
// document at version (captured at schedule time) against its declared
// schema.
func (s *Server) runDiagnostics(ctx context.Context, uri protocol.DocumentURI, version int32) ([]protocol.Diagnostic, error) {
	snap, ok := s.docs.Read(uri)
	if !ok || snap.Version != version {
		return nil, nil
	}
	if !snap.HasSchema || s.cache == nil {
		return nil, nil
	}
	compiled, _, err := s.cache.Get(ctx, snap.SchemaURL)
	if err != nil || compiled == nil {
		return nil, nil
	}
	r := rope.New(snap.Text)
	diags, err := feature.Diagnose([]byte(snap.Text), compiled, r)
	if err != nil {
		return nil, err
	}
	return diags, nil
}

func (s *Server) publishDiagnostics(uri protocol.DocumentURI, version int32, diags []protocol.Diagnostic) {
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	if err := s.conn.Notify(protocol.MethodTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     uint32(version),
		Diagnostics: diags,
	}); err != nil {
		s.log.Error("publish diagnostics", zap.Error(err))
	}
}

func (s *Server) currentVersion(uri protocol.DocumentURI) (int32, bool) {
	snap, ok := s.docs.Read(uri)
	if !ok {
		return 0, false
	}
	return snap.Version, true
}
