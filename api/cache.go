package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"
)

// contentCache holds rendered JSON for the public read endpoints. A nil
// *contentCache disables caching; ETags are still computed.
//
// Entries are keyed by generation. invalidate bumps it, so a body loaded
// before a mutation lands under a key no reader asks for any more.
type contentCache struct {
	store *bigcache.BigCache
	gen   atomic.Uint64
}

func newContentCache(ttl time.Duration) (*contentCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	// Blog posts and link lists are few and small.
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 8 * 1024
	cfg.HardMaxCacheSize = 64
	cfg.CleanWindow = ttl
	store, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, err
	}
	return &contentCache{store: store}, nil
}

// scoped returns key qualified by the current generation.
func (c *contentCache) scoped(key string) string {
	if c == nil {
		return key
	}
	return strconv.FormatUint(c.gen.Load(), 10) + ":" + key
}

func (c *contentCache) get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.store.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *contentCache) set(key string, body []byte) {
	if c == nil {
		return
	}
	_ = c.store.Set(key, body)
}

// invalidate drops every entry; mutations are rare enough that finer
// grained eviction is not worth tracking.
func (c *contentCache) invalidate() {
	if c == nil {
		return
	}
	c.gen.Add(1)
	_ = c.store.Reset()
}

func (c *contentCache) close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}

// serveCached answers r from the cache entry under key, loading and storing
// it on a miss. Responses carry a strong ETag; a matching If-None-Match
// gets 304 with no body.
func (a *API) serveCached(w http.ResponseWriter, r *http.Request, key string, load func() (any, error)) {
	// Scope before loading so a concurrent invalidate orphans what we store.
	key = a.cache.scoped(key)
	body, ok := a.cache.get(key)
	if !ok {
		v, err := load()
		if err != nil {
			mapError(w, r, err)
			return
		}
		body, err = json.Marshal(v)
		if err != nil {
			writeInternalError(w, r, msgInternal, err)
			return
		}
		a.cache.set(key, body)
	}

	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
