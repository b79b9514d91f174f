package readahead

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/pkg/errs"
	"github.com/tscached/tscached/pkg/fingerprint"
	"github.com/tscached/tscached/pkg/timerange"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

// syntheticWindow builds the "everything we know about" window spec
// §4.7 submits each tracked KQuery through: a start_relative expressed
// in minutes-since-epoch, with no end (defaults to now).
func syntheticWindow(now time.Time) timerange.Window {
	minutesSinceEpoch := now.Unix() / 60
	r := timerange.Relative{Value: minutesSinceEpoch, Unit: timerange.UnitMinutes}
	return timerange.Window{StartRelative: &r}
}

// RunPass executes one read-ahead pass (spec §4.7 "Work loop"): walk the
// tracked-query set and refresh every entry via the coherence engine.
// Per-entry backend failures are logged and the loop continues;
// cache-layer failures abort the pass (the caller should treat that as
// this pass having failed, but the lock is still released by the
// caller's defer).
func RunPass(ctx context.Context, e *coherence.Engine, now time.Time) error {
	members, err := e.Cache.SetMembers(ctx, fingerprint.Singleton(fingerprint.TypeShadowList))
	if err != nil {
		return err
	}

	for _, key := range members {
		kq := &query.KQuery{Key: key, Window: syntheticWindow(now)}
		if err := kq.Load(ctx, e.Cache); err != nil {
			return err // cache-layer failure: abort the pass.
		}
		if !kq.CacheValid || kq.Metric == nil {
			level.Info(tslog.Logger).Log("msg", "shadow_list references a vanished kquery", "key", key)
			continue
		}

		_, _, err := e.ProcessCacheHit(ctx, kq, now)
		if err == nil {
			continue
		}

		var backendErr *errs.BackendFailure
		if errors.As(err, &backendErr) {
			level.Warn(tslog.Logger).Log("msg", "read-ahead refresh failed", "key", key, "err", err)
			continue
		}
		return err // CacheFailure: abort the pass.
	}
	return nil
}
