// Package encoding maintains a verifier node's in-memory encoding cache: the
// parallel identity-tag and embedding sequences the embedding matcher scans.
// The cache is rebuilt wholesale from stored samples, never merged.
package encoding

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"ciphera/internal/extractor"
)

// SampleSource enumerates every stored raw sample with its owning slug.
type SampleSource interface {
	Walk(fn func(slug string, image []byte) error) error
}

// Cache holds one embedding per encoded face across all enrolled identities,
// tagged with the identity's slug. identityTags[i] owns embeddings[i].
//
// Rebuild replaces the whole cache under the lock; readers always observe a
// consistent tag/embedding pairing. The registration path calls Rebuild
// synchronously so an identity becomes matchable before its registration
// returns; the verify path lazily rebuilds on first use.
type Cache struct {
	mu         sync.RWMutex
	tags       []string
	embeddings []extractor.Vector
	loaded     bool

	source  SampleSource
	extract extractor.Client
	logger  *slog.Logger

	// Rebuilds are CPU- and extractor-bound; serialize them so a burst of
	// registrations cannot pile up concurrent full re-scans.
	rebuilds *semaphore.Weighted
}

// New creates an empty, unloaded cache over the given sample source.
func New(source SampleSource, extract extractor.Client, logger *slog.Logger) *Cache {
	return &Cache{
		source:   source,
		extract:  extract,
		logger:   logger,
		rebuilds: semaphore.NewWeighted(1),
	}
}

// Rebuild re-scans every stored sample and replaces the cache contents.
// Identities whose samples produce no usable embeddings are simply absent.
func (c *Cache) Rebuild(ctx context.Context) error {
	if err := c.rebuilds.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.rebuilds.Release(1)

	var (
		tags       []string
		embeddings []extractor.Vector
		scanned    int
	)
	err := c.source.Walk(func(slug string, image []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++

		vectors, err := c.extract.Embeddings(ctx, image)
		if err != nil {
			return err
		}
		for _, v := range vectors {
			tags = append(tags, slug)
			embeddings = append(embeddings, v)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tags = tags
	c.embeddings = embeddings
	c.loaded = true
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.InfoContext(ctx, "encoding cache rebuilt",
			"samples_scanned", scanned,
			"entries", len(tags),
		)
	}
	return nil
}

// Invalidate drops the cache; the next Snapshot triggers a rebuild.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.tags = nil
	c.embeddings = nil
	c.loaded = false
	c.mu.Unlock()
}

// Snapshot returns the current tag and embedding sequences, rebuilding first
// if the cache has never been loaded or was invalidated. The returned slices
// are replaced, never mutated, so callers may read them without copying.
func (c *Cache) Snapshot(ctx context.Context) ([]string, []extractor.Vector, error) {
	c.mu.RLock()
	if c.loaded {
		tags, embeddings := c.tags, c.embeddings
		c.mu.RUnlock()
		return tags, embeddings, nil
	}
	c.mu.RUnlock()

	if err := c.Rebuild(ctx); err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tags, c.embeddings, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags)
}
