// Package coherence implements C6: the decision procedure that
// classifies a request HOT/WARM/COLD against the cache and dispatches to
// the matching fetch/merge strategy (spec §4.6). Grounded on
// original_source/tscached/cache_calls.py's process_cache_hit dispatch,
// rewritten around explicit KV-store and TSDB client handles rather than
// module-level globals (spec §9 "Global state" note).
package coherence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/series"
	"github.com/tscached/tscached/pkg/errs"
	"github.com/tscached/tscached/pkg/timerange"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

// Mode is the cache-classification outcome surfaced to callers in the
// X-tscached-mode response header (spec §6).
type Mode string

const (
	ModeHot         Mode = "hot"
	ModeWarmAppend  Mode = "warm_append"
	ModeWarmPrepend Mode = "warm_prepend"
	ModeColdMiss    Mode = "cold_miss"
)

// Engine holds the tunables and collaborators every dispatch needs. One
// Engine is shared across all concurrent requests; it carries no
// per-request state.
type Engine struct {
	Cache  cache.Client
	Kairos *query.KairosClient

	Staleness            time.Duration
	ChunkLength          time.Duration
	PerChunkTimeout      time.Duration
	ExpectedResolutionMs int64
	MergeCutoff          int
	AcceptableSkew       int
	KQueryTTL            time.Duration
	MTSTTL               time.Duration
	GCThreshold          time.Duration
	ExpiryWindow         time.Duration
}

// ProcessCacheHit loads kq's cached record, classifies the request
// against it, and dispatches to hot/warm/cold (spec §4.6). now is
// threaded through explicitly so callers (and tests) control the clock.
func (e *Engine) ProcessCacheHit(ctx context.Context, kq *query.KQuery, now time.Time) (series.Response, Mode, error) {
	if err := kq.Load(ctx, e.Cache); err != nil {
		return series.Response{}, "", errs.NewCacheFailure("loading kquery", err)
	}

	startReq, endReq, err := timerange.Resolve(kq.Window, now)
	if err != nil {
		return series.Response{}, "", errs.NewBackendFailure("resolving request window", err)
	}

	rn := timerange.GetRangeNeeded(startReq, endReq, kq.EarliestData, kq.LastAddData, kq.CacheValid, e.Staleness)

	switch rn.Outcome {
	case timerange.NoWork:
		resp, err := e.hot(ctx, kq, startReq, endReq)
		return resp, ModeHot, err
	case timerange.FetchAll:
		if kq.CacheValid {
			level.Warn(tslog.Logger).Log("msg", "odd cold: range_needed is fetch_all with a valid cache entry", "key", kq.Key)
		}
		resp, err := e.cold(ctx, kq, startReq, endReq)
		return resp, ModeColdMiss, err
	case timerange.FetchBefore:
		resp, err := e.warm(ctx, kq, startReq, endReq, rn, now)
		return resp, ModeWarmPrepend, err
	case timerange.FetchAfter:
		resp, err := e.warm(ctx, kq, startReq, endReq, rn, now)
		return resp, ModeWarmAppend, err
	default:
		return series.Response{}, "", errs.NewBackendFailure("unsupported range_needed", fmt.Errorf("outcome %s", rn.Outcome))
	}
}

// emptyEcho is the TSDB-compatible "no data" shape: the original query
// echoed with an empty values array.
func emptyEcho(kq *query.KQuery) series.Response {
	return series.Response{
		Results: []series.Series{{
			Name:        kq.Metric.Name(),
			Tags:        kq.Metric.Tags(),
			GroupBy:     kq.Metric.GroupBy(),
			Aggregators: kq.Metric.Aggregators(),
			Values:      []series.Point{},
		}},
	}
}
