// Package lists keeps the client's task and event lists. Writes show up in
// the local snapshot at once and are then reconciled with the server's list.
package lists

import (
	"context"

	"taskcal/internal/client/cache"
	"taskcal/internal/logger"
)

// optimistic applies a local edit, performs the server write and then
// overwrites the snapshot with a fresh server fetch, which also undoes the
// local edit when the write failed.
type optimistic[T any] struct {
	cache *cache.Cache[T]
	fetch cache.Fetcher[T]
}

// apply runs one optimistic write. settle is called with the write result
// when the write succeeded but the re-fetch did not, so the snapshot reflects
// the server's answer instead of the local guess.
func (o *optimistic[T]) apply(ctx context.Context, local func([]T) []T, write func(context.Context) (settle func([]T) []T, err error)) error {
	prev, _, err := o.cache.Swap(ctx, local)
	if err != nil {
		return err
	}

	settle, writeErr := write(ctx)

	if _, err := o.cache.Refresh(ctx, o.fetch); err != nil {
		logger.Warn("reconcile failed", "error", err, "write_error", writeErr)
		switch {
		case writeErr != nil:
			if _, rerr := o.cache.Mutate(ctx, func([]T) []T { return prev }); rerr != nil {
				logger.Error("revert failed", "error", rerr)
			}
		case settle != nil:
			if _, serr := o.cache.Mutate(ctx, settle); serr != nil {
				logger.Error("settle failed", "error", serr)
			}
		}
	}
	return writeErr
}
