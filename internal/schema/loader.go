// Package schema fetches raw schema documents, caches compiled schemas
// with TTL/capacity bounds and singleflight-coalesced misses, and walks a
// schema tree to the subschema that applies at a given instance path.
package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

// fetchTimeout bounds a single schema fetch: a loader that can hang
// forever would stall every document waiting on the same schema URL.
const fetchTimeout = 10 * time.Second

// maxSchemaBytes caps the size of a fetched schema document; an unbounded
// fetch is a memory hazard for a long-running server process.
const maxSchemaBytes = 10 << 20 // 10 MiB

// Loader fetches raw schema bytes from http(s) or file URLs.
type Loader struct {
	client *http.Client
	log    *zap.Logger
}

// NewLoader returns a Loader using client for http(s) fetches. If client is
// nil, a client with fetchTimeout is constructed.
func NewLoader(client *http.Client, log *zap.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{client: client, log: log}
}

// Load fetches the raw bytes at url, which must be an http://, https://, or
// file:// URL.
func (l *Loader) Load(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return l.loadHTTP(ctx, url)
	case strings.HasPrefix(url, "file://"):
		return l.loadFile(url)
	default:
		return nil, fmt.Errorf("schema: unsupported URL scheme in %q", url)
	}
}

func (l *Loader) loadHTTP(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("schema: build request for %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schema: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schema: fetch %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("schema: read body of %s: %w", url, err)
	}
	if len(data) > maxSchemaBytes {
		return nil, fmt.Errorf("schema: %s exceeds %d byte limit", url, maxSchemaBytes)
	}
	return data, nil
}

func (l *Loader) loadFile(rawURL string) ([]byte, error) {
	u, err := uri.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", rawURL, err)
	}
	data, err := os.ReadFile(u.Filename())
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", rawURL, err)
	}
	if len(data) > maxSchemaBytes {
		return nil, fmt.Errorf("schema: %s exceeds %d byte limit", rawURL, maxSchemaBytes)
	}
	return data, nil
}
