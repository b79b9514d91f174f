// Package readahead implements C7: the background worker that keeps
// popular queries warm in the absence of live traffic. Leader election
// is grounded on original_source/tscached/shadow.py's become_leader
// (RedLock), reimplemented over modules/cache's SET-NX-based lock
// primitive rather than a dedicated RedLock client, since a single
// SET-NX-with-TTL against one Redis instance already gives the same
// "fail fast, let it expire on crash" guarantee this single-master
// deployment relies on.
package readahead

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/pkg/fingerprint"
)

var (
	lockKey   = fingerprint.Singleton(fingerprint.TypeShadowLock)
	serverKey = fingerprint.Singleton(fingerprint.TypeShadowServer)
)

// Leadership is a held lock; call Release when the pass is done.
type Leadership struct {
	c        cache.Client
	hostname string
}

// BecomeLeader attempts to acquire the shadow lock for expiration
// (spec §4.7). On success it also writes shadow_server := hostname for
// diagnostics. On failure — lock held or a cache error — it fails fast;
// callers must not retry in-process.
func BecomeLeader(ctx context.Context, c cache.Client, expiration time.Duration) (*Leadership, bool, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	acquired, err := c.AcquireLock(ctx, lockKey, hostname, expiration)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	if err := c.Set(ctx, serverKey, []byte(hostname), expiration); err != nil {
		// diagnostics-only write; losing it doesn't invalidate leadership.
		return &Leadership{c: c, hostname: hostname}, true, nil
	}
	return &Leadership{c: c, hostname: hostname}, true, nil
}

// CurrentLeaderHostname returns who currently holds the lock, for
// diagnostics when acquisition fails.
func CurrentLeaderHostname(ctx context.Context, c cache.Client) (string, error) {
	b, err := c.Get(ctx, serverKey)
	if err == cache.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Release gives up leadership explicitly (spec §4.7: "release the lock
// on exit, or let it expire on crash").
func (l *Leadership) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.c.ReleaseLock(ctx, lockKey, l.hostname)
}

func (l *Leadership) String() string {
	if l == nil {
		return "<no leadership>"
	}
	return fmt.Sprintf("leader(%s)", l.hostname)
}
