package cache

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// FetchFunc fetches the value on demand when nothing was ever written.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Value holds one continuously refreshed fact (a price, a block reference).
//
// Writers are the background feeds, readers never wait for them. Until the first
// write the cache holds the zero value of T. A Get in that window runs the fallback
// fetch and installs its result; concurrent fallbacks may overlap, last write wins.
type Value[T any] struct {
	name  string
	fetch FetchFunc[T]

	mu        sync.RWMutex
	value     T
	set       bool
	updatedAt time.Time
}

// NewValue creates an empty cache. fetch may be nil, in which case Get
// on an empty cache reports exception.ErrCacheNoFetcher.
func NewValue[T any](name string, fetch FetchFunc[T]) *Value[T] {
	return &Value[T]{
		name:  name,
		fetch: fetch,
	}
}

// Name returns the label given at construction.
func (c *Value[T]) Name() string {
	return c.name
}

// Set stores v. It never fails.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.set = true
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

// Load returns the current value without fetching. ok is false when
// nothing was ever written.
func (c *Value[T]) Load() (v T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.set
}

// UpdatedAt returns the time of the last write, zero when never written.
func (c *Value[T]) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Get returns the last written value. When the cache was never written it
// fetches through the fallback, stores the result and returns it. A failed
// fallback returns the zero value together with the error, callers log it.
func (c *Value[T]) Get(ctx context.Context) (T, error) {
	if v, ok := c.Load(); ok {
		return v, nil
	}

	var zero T
	if c.fetch == nil {
		return zero, errors.Wrap(exception.ErrCacheNoFetcher, c.name)
	}

	v, err := c.fetch(ctx)
	if err != nil {
		return zero, errors.Wrapf(exception.ErrCacheFetch, "%s, err: %+v", c.name, err)
	}

	c.Set(v)
	return v, nil
}
