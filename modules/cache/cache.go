// Package cache implements C3: a narrow typed facade over the shared
// KV-store (spec §4.3). Every method surfaces KV-store errors as
// *errs.CacheFailure; callers decide recovery (spec §7) — on the request
// path that means degrading to a direct COLD-path proxy, on the
// read-ahead path it means aborting the current pass.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/tscached/tscached/pkg/errs"
)

// ErrNotFound is returned by Get for an absent key. It is not a
// CacheFailure: a miss is an expected outcome, not an error condition.
var ErrNotFound = errors.New("cache: key not found")

// Client is the narrow KV-store interface every other component depends
// on (spec §4.3, §9 "pass explicitly" design note). Values are opaque
// byte slices; callers serialize/deserialize their own canonical JSON.
type Client interface {
	// Get returns ErrNotFound (not wrapped) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// MGet batches gets into one round trip. The returned slice has the
	// same length and order as keys; a missing key's slot is nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	// MSet batches sets (each with its own TTL) into one round trip.
	MSet(ctx context.Context, items map[string]SetItem) error
	SetAdd(ctx context.Context, setKey, member string) error
	SetMembers(ctx context.Context, setKey string) ([]string, error)
	Delete(ctx context.Context, key string) error
	FlushAll(ctx context.Context) error

	// AcquireLock implements the distributed-lock primitive the read-ahead
	// worker uses for leader election (spec §4.7): SET key owner NX with
	// the given TTL. Returns false (no error) when the lock is already
	// held by someone else.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseLock deletes key only if it is still held by owner.
	ReleaseLock(ctx context.Context, key, owner string) error
}

// SetItem is one member of an MSet batch.
type SetItem struct {
	Value []byte
	TTL   time.Duration
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.NewCacheFailure(op, err)
}
