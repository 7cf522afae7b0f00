// Package settings decodes the LSP initializationOptions this server
// understands: the schema cache's tuning knobs. There is no
// client-capability negotiation to track.
package settings

import (
	"encoding/json"
	"time"

	"github.com/jsonschemals/jsonschemals/internal/schema"
)

// DefaultSchemaTTLSecs and DefaultSchemaCacheCapacity are applied when the
// corresponding key is absent from initializationOptions entirely.
const (
	DefaultSchemaTTLSecs       = 28800
	DefaultSchemaCacheCapacity = schema.DefaultCapacity
)

// Options is the decoded form of initializationOptions. Unknown keys are
// ignored.
type Options struct {
	SchemaTTLSecs       int64 `json:"schema_ttl_secs"`
	SchemaCacheCapacity int   `json:"schema_cache_capacity"`
}

// raw mirrors Options but with pointer fields, so Decode can tell "key
// absent" (nil, apply the default) from "key present with a zero or
// negative value" (configured, carried through verbatim so the cache can
// apply its disables/never-caches rules).
type raw struct {
	SchemaTTLSecs       *int64 `json:"schema_ttl_secs"`
	SchemaCacheCapacity *int   `json:"schema_cache_capacity"`
}

// Decode parses initializationOptions (which may be nil or empty) into
// Options, applying defaults for any absent key.
func Decode(initializationOptions json.RawMessage) (Options, error) {
	opts := Options{
		SchemaTTLSecs:       DefaultSchemaTTLSecs,
		SchemaCacheCapacity: DefaultSchemaCacheCapacity,
	}
	if len(initializationOptions) == 0 {
		return opts, nil
	}

	var r raw
	if err := json.Unmarshal(initializationOptions, &r); err != nil {
		return opts, err
	}
	if r.SchemaTTLSecs != nil {
		opts.SchemaTTLSecs = *r.SchemaTTLSecs
	}
	if r.SchemaCacheCapacity != nil {
		opts.SchemaCacheCapacity = *r.SchemaCacheCapacity
	}
	return opts, nil
}

// TTL converts SchemaTTLSecs to a time.Duration understood by
// [schema.NewCache]. A zero or negative value is passed straight through;
// schema.NewCache treats any ttl <= 0 as "never cache".
func (o Options) TTL() time.Duration {
	return time.Duration(o.SchemaTTLSecs) * time.Second
}

// CacheCapacity converts SchemaCacheCapacity to the capacity argument
// [schema.NewCache] expects. schema.NewCache's own zero means "use its
// internal default", so an explicitly-configured zero (or negative) here —
// which must disable caching — is translated to -1, the cache's
// "disabled" sentinel.
func (o Options) CacheCapacity() int {
	if o.SchemaCacheCapacity <= 0 {
		return -1
	}
	return o.SchemaCacheCapacity
}
