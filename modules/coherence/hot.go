package coherence

import (
	"context"

	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/series"
)

// hot implements spec §4.6 hot(): a pipelined multi-get of every series
// this KQuery previously produced, trimmed to the request window. A
// dangling reference (the MTS record has since been evicted) is
// tolerated — it is simply absent from the response.
func (e *Engine) hot(ctx context.Context, kq *query.KQuery, startReq, endReq int64) (series.Response, error) {
	if len(kq.MTSKeys) == 0 {
		return emptyEcho(kq), nil
	}

	raw, err := e.Cache.MGet(ctx, kq.MTSKeys)
	if err != nil {
		return series.Response{}, err
	}

	var resp series.Response
	found := false
	for _, b := range raw {
		if b == nil {
			continue
		}
		s, err := series.Unmarshal(b)
		if err != nil {
			continue // malformed cached series: treated as vanished.
		}
		series.BuildResponse(s, startReq, &endReq, true, e.ExpectedResolutionMs, e.AcceptableSkew, &resp)
		found = true
	}
	if !found {
		return emptyEcho(kq), nil
	}
	return resp, nil
}
