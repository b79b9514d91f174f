package coherence

import (
	"context"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/series"
	"github.com/tscached/tscached/pkg/timerange"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

// cold implements spec §4.6 cold(): chunk the window, fetch every chunk
// in parallel, and fold them into per-series records walking
// oldest-first. Concatenation (not a seam merge) is safe here because
// align_start_time guarantees no partial-window duplication between
// adjacent chunks; the deliberate one-second chunk overlap produces at
// most one duplicate point, resolved downstream by the seam merge on a
// later refresh.
func (e *Engine) cold(ctx context.Context, kq *query.KQuery, startReq, endReq int64) (series.Response, error) {
	chunks := timerange.GetChunkedTimeRanges(startReq, endReq, e.ChunkLength)

	chunkResponses, err := e.Kairos.ProxyToKairosChunked(ctx, kq.Metric, chunks, e.PerChunkTimeout)
	if err != nil {
		return series.Response{}, err
	}

	mtsLookup := map[string]series.Series{}
	var order []string
	// chunks and chunkResponses are index-keyed newest-first (Index 0 is
	// newest); walk oldest-first for the fold.
	for i := len(chunkResponses) - 1; i >= 0; i-- {
		for _, s := range chunkResponses[i].Results {
			key, err := series.Key(kq.Metric.Tags(), s)
			if err != nil {
				level.Warn(tslog.Logger).Log("msg", "skipping series with unfingerprintable key", "err", err)
				continue
			}
			existing, ok := mtsLookup[key]
			if !ok {
				mtsLookup[key] = s
				order = append(order, key)
				continue
			}
			existing.Values = append(existing.Values, s.Values...)
			mtsLookup[key] = existing
		}
	}

	if len(mtsLookup) == 0 {
		return emptyEcho(kq), nil
	}

	items := make(map[string]cache.SetItem, len(mtsLookup))
	mtsKeys := make([]string, 0, len(mtsLookup))
	var resp series.Response
	for _, key := range order {
		s := mtsLookup[key]
		series.BuildResponse(s, startReq, &endReq, false, e.ExpectedResolutionMs, e.AcceptableSkew, &resp)

		b, merr := s.Marshal()
		if merr != nil {
			level.Warn(tslog.Logger).Log("msg", "failed to marshal cold series for write-back", "key", key, "err", merr)
			continue
		}
		items[key] = cache.SetItem{Value: b, TTL: e.MTSTTL}
		mtsKeys = append(mtsKeys, key)
	}

	if err := e.Cache.MSet(ctx, items); err != nil {
		level.Warn(tslog.Logger).Log("msg", "cold write-back failed, degrading to proxy-only response", "key", kq.Key, "err", err)
	}
	if err := kq.Upsert(ctx, e.Cache, startReq, endReq, mtsKeys, e.KQueryTTL); err != nil {
		level.Warn(tslog.Logger).Log("msg", "kquery upsert failed after cold fetch", "key", kq.Key, "err", err)
	}

	return resp, nil
}
