// Package cache keeps list snapshots in the device store and decides when
// they are too old to serve without asking the server.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskcal/internal/client/devicestore"
	"taskcal/internal/logger"
)

// FreshFor is how long a snapshot is served without a network fetch.
const FreshFor = 5 * time.Minute

// Snapshot is a list as last seen from the server.
type Snapshot[T any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	Items     []T       `json:"items"`
}

// Fresh reports whether the snapshot is younger than FreshFor at now.
func (s Snapshot[T]) Fresh(now time.Time) bool {
	return !s.FetchedAt.IsZero() && now.Sub(s.FetchedAt) < FreshFor
}

// Fetcher loads the authoritative list from the server.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Cache is the snapshot stored under one key.
type Cache[T any] struct {
	store devicestore.Store
	key   string
	now   func() time.Time
	mu    sync.Mutex
}

func New[T any](store devicestore.Store, key string) *Cache[T] {
	return &Cache[T]{store: store, key: key, now: time.Now}
}

// WithClock replaces the time source.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Snapshot returns the stored snapshot and whether one exists.
func (c *Cache[T]) Snapshot(ctx context.Context) (Snapshot[T], bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(ctx)
}

// read expects c.mu to be held.
func (c *Cache[T]) read(ctx context.Context) (Snapshot[T], bool, error) {
	var snap Snapshot[T]
	err := devicestore.GetJSON(ctx, c.store, c.key, &snap)
	if errors.Is(err, devicestore.ErrNotFound) {
		return Snapshot[T]{}, false, nil
	}
	if err != nil {
		return Snapshot[T]{}, false, err
	}
	return snap, true, nil
}

// Load serves a fresh snapshot from the store, otherwise fetches and stores
// the server's list. When the fetch fails and an older snapshot exists, that
// snapshot is served instead.
func (c *Cache[T]) Load(ctx context.Context, fetch Fetcher[T]) ([]T, error) {
	snap, ok, err := c.Snapshot(ctx)
	if err != nil {
		logger.Warn("cache unreadable, refetching", "key", c.key, "error", err)
	}
	if ok && snap.Fresh(c.now()) {
		return snap.Items, nil
	}

	items, err := c.Refresh(ctx, fetch)
	if err != nil {
		if ok {
			logger.Warn("serving stale cache", "key", c.key, "age", c.now().Sub(snap.FetchedAt), "error", err)
			return snap.Items, nil
		}
		return nil, err
	}
	return items, nil
}

// Refresh always fetches and overwrites the snapshot.
func (c *Cache[T]) Refresh(ctx context.Context, fetch Fetcher[T]) ([]T, error) {
	items, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Put(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Put stores items as a snapshot taken now.
func (c *Cache[T]) Put(ctx context.Context, items []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if items == nil {
		items = []T{}
	}
	return devicestore.SetJSON(ctx, c.store, c.key, Snapshot[T]{FetchedAt: c.now(), Items: items})
}

// Mutate edits the stored items in place without changing their fetch time.
// A missing snapshot is treated as empty.
func (c *Cache[T]) Mutate(ctx context.Context, fn func([]T) []T) ([]T, error) {
	_, next, err := c.Swap(ctx, fn)
	return next, err
}

// Swap is Mutate that also returns the items it replaced. Both are read and
// written under one lock, so no other write on this cache lands in between.
func (c *Cache[T]) Swap(ctx context.Context, fn func([]T) []T) (prev, next []T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, _, err := c.read(ctx)
	if err != nil {
		return nil, nil, err
	}
	prev = append([]T(nil), snap.Items...)
	snap.Items = fn(snap.Items)
	if snap.Items == nil {
		snap.Items = []T{}
	}
	if err := devicestore.SetJSON(ctx, c.store, c.key, snap); err != nil {
		return nil, nil, err
	}
	return prev, snap.Items, nil
}

// Invalidate drops the snapshot so the next Load fetches.
func (c *Cache[T]) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete(ctx, c.key)
}
