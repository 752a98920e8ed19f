// Package prompt caches the configurable direct-RAG system prompt.
package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// DefaultTTL is how long a loaded prompt is served before reloading.
const DefaultTTL = 5 * time.Minute

// Default is used when no prompt has been configured.
const Default = "You are a helpful assistant answering questions about a person's resume, " +
	"including their projects, education and work experience. Answer only from the provided " +
	"context. Prefer content marked highest priority, then medium priority, and use fallback " +
	"content only when nothing else answers the question. If the context does not contain " +
	"the answer, say so plainly."

// Loader reads the current prompt value.
type Loader func(ctx context.Context) (string, error)

// StoreLoader reads the prompt from the record store's config table. A
// missing or blank key yields Default.
func StoreLoader(s store.RecordStore) Loader {
	return func(ctx context.Context) (string, error) {
		v, err := s.GetConfig(ctx, store.KeySystemPrompt)
		if errors.Is(err, store.ErrNotFound) || (err == nil && v == "") {
			return Default, nil
		}
		return v, err
	}
}

// Cache holds one prompt value and reloads it once it is older than ttl.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	value    string
	loadedAt time.Time
	loaded   bool
	ttl      time.Duration
	load     Loader
	now      func() time.Time
}

// NewCache returns a Cache that reads through load. ttl <= 0 uses DefaultTTL.
func NewCache(load Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, load: load, now: time.Now}
}

// Get returns the cached prompt, reloading when it has expired or was
// invalidated. If a reload fails the previous value is kept and served;
// with nothing cached yet, Default is returned with the error.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Sub(c.loadedAt) <= c.ttl {
		return c.value, nil
	}

	v, err := c.load(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("prompt: reload failed, serving previous value", slog.String("error", err.Error()))
		if c.loaded {
			return c.value, nil
		}
		return Default, err
	}
	c.value, c.loadedAt, c.loaded = v, c.now(), true
	return v, nil
}

// Invalidate forces the next Get to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}
