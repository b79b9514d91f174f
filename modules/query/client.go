package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log/level"

	tslog "github.com/tscached/tscached/pkg/util/log"

	"github.com/tscached/tscached/modules/series"
	"github.com/tscached/tscached/pkg/errs"
	"github.com/tscached/tscached/pkg/timerange"
)

// DefaultPerChunkTimeout is the per-chunk backend timeout spec §5 names.
const DefaultPerChunkTimeout = 30 * time.Second

// KairosClient proxies metric queries to the upstream TSDB. Grounded on
// cmd/tempo-federated-querier/querier.go's TempoClient: a thin
// *http.Client wrapper with one JSON-in/JSON-out method.
type KairosClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewKairosClient builds a client for the TSDB at host:port.
func NewKairosClient(host string, port int) *KairosClient {
	return &KairosClient{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v1/datapoints/query", host, port),
		httpClient: &http.Client{},
	}
}

type kairosQueryResponse struct {
	Queries []series.Response `json:"queries"`
}

// ProxyToKairos issues a single-shot proxied query for metric over window
// (spec §4.5 proxy_to_kairos). Any transport or non-2xx error is a
// BackendFailure.
func (c *KairosClient) ProxyToKairos(ctx context.Context, metric Metric, w timerange.Window) (series.Response, error) {
	body, err := buildQueryBody(metric, w)
	if err != nil {
		return series.Response{}, errs.NewBackendFailure("building proxy request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return series.Response{}, errs.NewBackendFailure("building proxy request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return series.Response{}, errs.NewBackendFailure("proxying to kairosdb", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return series.Response{}, errs.NewBackendFailure("reading kairosdb response", err)
	}
	if resp.StatusCode/100 != 2 {
		return series.Response{}, errs.NewBackendFailure(
			fmt.Sprintf("kairosdb returned %d", resp.StatusCode), fmt.Errorf("%s", string(respBody)))
	}

	var parsed kairosQueryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return series.Response{}, errs.NewBackendFailure("parsing kairosdb response", err)
	}
	if len(parsed.Queries) == 0 {
		return series.Response{}, nil
	}
	if len(parsed.Queries) != 1 {
		level.Warn(tslog.Logger).Log("msg", "proxy expected 1 query block, found more", "count", len(parsed.Queries))
	}
	return parsed.Queries[0], nil
}

// chunkResult is the index-keyed slot ProxyToKairosChunked's workers
// write into (spec §4.5).
type chunkResult struct {
	resp series.Response
	err  error
}

// ProxyToKairosChunked issues one backend request per chunk in parallel,
// bounded by len(chunks) concurrent workers, each under its own
// per-chunk timeout. Results are returned in the original chunk-index
// order; the caller (C6 cold) walks them oldest-first. If any chunk
// failed, the first failure (by chunk index) is raised as a
// BackendFailure.
func (c *KairosClient) ProxyToKairosChunked(ctx context.Context, metric Metric, chunks []timerange.Chunk, perChunkTimeout time.Duration) ([]series.Response, error) {
	results := make([]chunkResult, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(idx int, ch timerange.Chunk) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, perChunkTimeout)
			defer cancel()

			startMs := ch.Start * 1000
			endMs := ch.End * 1000
			w := timerange.Window{StartAbsoluteMs: &startMs, EndAbsoluteMs: &endMs}

			resp, err := c.ProxyToKairos(cctx, metric, w)
			results[idx] = chunkResult{resp: resp, err: err}
		}(i, chunk)
	}
	wg.Wait()

	out := make([]series.Response, len(chunks))
	for i, r := range results {
		if r.err != nil {
			return nil, errs.NewBackendFailure(fmt.Sprintf("chunk %d fetch failed", i), r.err)
		}
		out[i] = r.resp
	}
	return out, nil
}

// buildQueryBody merges the window's JSON fields with the metric query
// into the TSDB's native request shape: {metrics:[metric], cache_time:0,
// start_relative/...}.
func buildQueryBody(metric Metric, w timerange.Window) ([]byte, error) {
	windowJSON, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshaling window: %w", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(windowJSON, &body); err != nil {
		return nil, fmt.Errorf("unmarshaling window: %w", err)
	}
	body["metrics"] = []Metric{metric}
	body["cache_time"] = 0
	return json.Marshal(body)
}
