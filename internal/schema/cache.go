package schema

import (
	"context"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a successfully loaded schema is trusted before a
// refetch is attempted.
const DefaultTTL = 8 * time.Hour

// DefaultCapacity is the default number of distinct schema URLs the cache
// will hold before evicting the least recently used entry.
const DefaultCapacity = 128

// failureCooldown is how long a failed fetch is remembered before another
// attempt is made for the same URL, so that a single broken schema
// reference doesn't retry on every keystroke.
const failureCooldown = 60 * time.Second

// entry is one cached schema: either a successfully compiled schema, or a
// remembered failure.
type entry struct {
	url      string
	schema   *jsonschema.Schema
	raw      []byte
	err      error
	loadedAt time.Time
	lastUsed time.Time
}

func (e *entry) failed() bool { return e.err != nil }

func (e *entry) stale(now time.Time, ttl time.Duration) bool {
	if e.failed() {
		return now.Sub(e.loadedAt) > failureCooldown
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.loadedAt) > ttl
}

// Cache is a TTL- and capacity-bounded store of compiled schemas, keyed by
// schema URL, with singleflight coalescing of concurrent misses for the
// same URL.
type Cache struct {
	loader   *Loader
	compiler *jsonschema.Compiler
	ttl      time.Duration
	capacity int
	disabled bool
	log      *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache returns a Cache that fetches misses via loader.
//
// capacity == 0 uses DefaultCapacity. capacity < 0 disables the cache
// outright: no entry is ever stored, though concurrent misses for the same
// URL still coalesce through the singleflight group. (The settings layer
// translates an explicitly-configured zero capacity into this negative
// sentinel, since the constructor's own literal zero already means "use
// the default".)
//
// ttl <= 0 means every loaded schema is immediately stale: each Get still
// returns its own freshly loaded result, but no subsequent call is ever
// served a schema from memory. A failed load is still remembered for
// failureCooldown whatever the ttl. There is no "use DefaultTTL" fallback here; that defaulting
// belongs to whatever decodes initializationOptions, since this
// constructor cannot tell an unset option from an explicit "never cache"
// request.
func NewCache(loader *Loader, ttl time.Duration, capacity int, log *zap.Logger) *Cache {
	disabled := capacity < 0
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	compiler := jsonschema.NewCompiler()
	return &Cache{
		loader:   loader,
		compiler: compiler,
		ttl:      ttl,
		capacity: capacity,
		disabled: disabled,
		log:      log,
		entries:  make(map[string]*entry),
	}
}

// Get returns the compiled schema for url, fetching and compiling it if
// necessary. Concurrent calls for the same url share one fetch.
func (c *Cache) Get(ctx context.Context, url string) (*jsonschema.Schema, []byte, error) {
	if e, ok := c.lookup(url); ok {
		return e.schema, e.raw, e.err
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		if e, ok := c.lookup(url); ok {
			return e, nil
		}
		raw, loadErr := c.loader.Load(ctx, url)
		var (
			compiled *jsonschema.Schema
			compErr  error
		)
		if loadErr == nil {
			compiled, compErr = c.compiler.Compile(raw, url)
		}
		e := &entry{
			url:      url,
			schema:   compiled,
			raw:      raw,
			err:      firstErr(loadErr, compErr),
			loadedAt: now(),
		}
		c.store(e)
		return e, nil
	})
	if err != nil {
		return nil, nil, err
	}
	e := v.(*entry)
	return e.schema, e.raw, e.err
}

func (c *Cache) lookup(url string) (*entry, bool) {
	if c.disabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if e.stale(now(), c.ttl) {
		return nil, false
	}
	e.lastUsed = now()
	return e, true
}

func (c *Cache) store(e *entry) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.lastUsed = now()
	c.entries[e.url] = e
	if len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

// evictOldest removes the least recently used entry. Must be called with
// c.mu held. Capacity overrun is rare (one entry over) so a linear scan is
// fine; this cache is sized in the low hundreds, not thousands.
func (c *Cache) evictOldest() {
	var oldestURL string
	var oldestTime time.Time
	first := true
	for url, e := range c.entries {
		if first || e.lastUsed.Before(oldestTime) {
			oldestURL = url
			oldestTime = e.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestURL)
	}
}

// Invalidate drops any cached entry for url, forcing the next Get to
// refetch.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// now is the cache's clock, factored out so tests can observe ordering
// without depending on wall-clock granularity.
var now = time.Now
