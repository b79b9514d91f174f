package coherence

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/series"
	"github.com/tscached/tscached/pkg/timerange"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

// warm implements spec §4.6 warm(): a single-shot proxy for the missing
// range, nudged by one expected_resolution so the fetch overlaps the
// cached data by at least one sample, then merged at the seam the
// classification (FetchBefore/FetchAfter) identified.
func (e *Engine) warm(ctx context.Context, kq *query.KQuery, startReq, endReq int64, rn timerange.RangeNeeded, now time.Time) (series.Response, error) {
	startAbsoluteMs := rn.Start*1000 - e.ExpectedResolutionMs
	endAbsoluteMs := rn.End * 1000
	w := timerange.Window{StartAbsoluteMs: &startAbsoluteMs, EndAbsoluteMs: &endAbsoluteMs}

	newResp, err := e.Kairos.ProxyToKairos(ctx, kq.Metric, w)
	if err != nil {
		return series.Response{}, err
	}

	cachedLookup, err := e.loadCachedSeries(ctx, kq)
	if err != nil {
		return series.Response{}, err
	}

	items := make(map[string]cache.SetItem)
	mtsKeys := make([]string, 0, len(newResp.Results))
	var startTimes, endTimes []int64
	var resp series.Response

	for _, newSeries := range newResp.Results {
		key, err := series.Key(kq.Metric.Tags(), newSeries)
		if err != nil {
			level.Warn(tslog.Logger).Log("msg", "skipping series with unfingerprintable key", "err", err)
			continue
		}
		mtsKeys = append(mtsKeys, key)

		cachedSeries, ok := cachedLookup[key]
		final := newSeries
		switch {
		case !ok:
			// a newly-reporting series: write fresh, include un-trimmed.
			final = newSeries
		case rn.Outcome == timerange.FetchAfter:
			if merged, mergedOK := series.MergeAtEnd(cachedSeries.Values, newSeries.Values, e.MergeCutoff); mergedOK {
				cachedSeries.Values = merged
			}
			if trimmed, _, changed := series.TTLExpire(cachedSeries.Values, e.GCThreshold, e.ExpiryWindow, now.Unix()); changed {
				cachedSeries.Values = trimmed
			}
			final = cachedSeries
		case rn.Outcome == timerange.FetchBefore:
			if merged, mergedOK := series.MergeAtBeginning(cachedSeries.Values, newSeries.Values, e.MergeCutoff); mergedOK {
				cachedSeries.Values = merged
			}
			final = cachedSeries
		}

		if len(final.Values) > 0 {
			startTimes = append(startTimes, final.Values[0].TsMs/1000)
			endTimes = append(endTimes, final.Values[len(final.Values)-1].TsMs/1000)
		}

		// only series merged into a cached counterpart are trimmed.
		series.BuildResponse(final, startReq, &endReq, ok, e.ExpectedResolutionMs, e.AcceptableSkew, &resp)

		b, merr := final.Marshal()
		if merr != nil {
			level.Warn(tslog.Logger).Log("msg", "failed to marshal warm series for write-back", "key", key, "err", merr)
			continue
		}
		items[key] = cache.SetItem{Value: b, TTL: e.MTSTTL}
	}

	if err := e.Cache.MSet(ctx, items); err != nil {
		level.Warn(tslog.Logger).Log("msg", "warm write-back failed, degrading to proxy-only response", "key", kq.Key, "err", err)
	}

	earliest, lastAdd := startReq, endReq
	if len(startTimes) > 0 {
		earliest = minInt64(startTimes)
		lastAdd = maxInt64(endTimes)
	}
	if err := kq.Upsert(ctx, e.Cache, earliest, lastAdd, mtsKeys, e.KQueryTTL); err != nil {
		level.Warn(tslog.Logger).Log("msg", "kquery upsert failed after warm fetch", "key", kq.Key, "err", err)
	}

	return resp, nil
}

func (e *Engine) loadCachedSeries(ctx context.Context, kq *query.KQuery) (map[string]series.Series, error) {
	out := make(map[string]series.Series, len(kq.MTSKeys))
	if len(kq.MTSKeys) == 0 {
		return out, nil
	}
	raw, err := e.Cache.MGet(ctx, kq.MTSKeys)
	if err != nil {
		return nil, err
	}
	for _, b := range raw {
		if b == nil {
			continue
		}
		s, err := series.Unmarshal(b)
		if err != nil {
			continue
		}
		key, kerr := series.Key(kq.Metric.Tags(), s)
		if kerr != nil {
			continue
		}
		out[key] = s
	}
	return out, nil
}

func minInt64(vs []int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxInt64(vs []int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
