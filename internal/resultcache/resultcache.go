// Package resultcache lets an export job skip rendering entirely when an
// identical request was already produced. It is a durable, TTL-based cache
// over the object store, keyed by the render request's content hash.
//
// The cache is an optimization, never a correctness dependency: every
// failure mode except the hit-path copy degrades to a miss.
package resultcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"docforge/internal/cachekey"
	"docforge/internal/docformat"
	"docforge/internal/pkg/logger"
	"docforge/internal/ports"
)

// Object metadata fields on cache entries.
const (
	MetaCachedAt = "cached-at"
	MetaTTLHours = "ttl-hours"
)

type Cache struct {
	store  ports.ObjectStore
	prefix string
	ttl    time.Duration
	log    *logger.Logger

	now func() time.Time
}

func New(store ports.ObjectStore, prefix string, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Cache{
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		log:    log.WithComponent("resultcache"),
		now:    time.Now,
	}
}

// Result is the outcome of a Lookup.
type Result struct {
	Hit   bool
	Key   string
	Bytes []byte
}

// ObjectKey returns the cache object key for a content hash and format.
func (c *Cache) ObjectKey(key, format string) string {
	return fmt.Sprintf("%s/%s.%s", c.prefix, key, format)
}

// Lookup computes the content hash for the request and probes the store.
// Storage and transport errors are logged and reported as a miss. The only
// error returned is a malformed request, which is a contract violation and
// must fail loudly.
func (c *Cache) Lookup(ctx context.Context, in cachekey.Input) (Result, error) {
	key, err := cachekey.Compute(in)
	if err != nil {
		return Result{}, err
	}

	res := Result{Key: key}
	objKey := c.ObjectKey(key, in.Format)
	log := c.log.FromContext(ctx)

	info, err := c.store.Stat(ctx, objKey)
	if err != nil {
		if !ports.IsNotFound(err) {
			log.Warn("result cache stat failed, treating as miss",
				"object_key", objKey,
				"error", err.Error(),
			)
		}
		return res, nil
	}

	cachedAt, err := time.Parse(time.RFC3339, info.Metadata[MetaCachedAt])
	if err != nil {
		log.Warn("result cache entry has no usable cached-at, treating as miss",
			"object_key", objKey,
		)
		return res, nil
	}

	// Expired entries are treated as absent, not purged.
	if c.now().After(cachedAt.Add(c.ttl)) {
		log.Debug("result cache entry expired",
			"object_key", objKey,
			"cached_at", cachedAt.Format(time.RFC3339),
		)
		return res, nil
	}

	body, _, err := c.store.Get(ctx, objKey)
	if err != nil {
		log.Warn("result cache fetch failed, treating as miss",
			"object_key", objKey,
			"error", err.Error(),
		)
		return res, nil
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		log.Warn("result cache read failed, treating as miss",
			"object_key", objKey,
			"error", err.Error(),
		)
		return res, nil
	}

	res.Hit = true
	res.Bytes = data
	return res, nil
}

// Store writes the rendered bytes under the cache key. Best effort: a
// cache-store failure must never fail an otherwise-successful export, so
// errors are logged and swallowed. Concurrent stores for the same key are
// idempotent, last-write-wins.
func (c *Cache) Store(ctx context.Context, key, format string, data []byte) {
	objKey := c.ObjectKey(key, format)

	_, err := c.store.Put(ctx, ports.PutObjectInput{
		Key:         objKey,
		ContentType: docformat.Format(format).ContentType(),
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		Metadata: map[string]string{
			MetaCachedAt: c.now().UTC().Format(time.RFC3339),
			MetaTTLHours: fmt.Sprintf("%d", int(c.ttl.Hours())),
		},
	})
	if err != nil {
		c.log.FromContext(ctx).Warn("result cache store failed",
			"object_key", objKey,
			"error", err.Error(),
		)
	}
}

// CopyToResultPath server-side copies the cache object to the job's
// externally visible result path. On a cache hit this copy is the only way
// to produce the deliverable, so errors propagate to the caller.
func (c *Cache) CopyToResultPath(ctx context.Context, key, format, destKey string) error {
	return c.store.Copy(ctx, c.ObjectKey(key, format), destKey)
}
