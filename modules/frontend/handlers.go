package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/readahead"
	"github.com/tscached/tscached/modules/series"
	"github.com/tscached/tscached/pkg/errs"
	"github.com/tscached/tscached/pkg/fingerprint"
	"github.com/tscached/tscached/pkg/timerange"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

// MetadataProxy is the narrow subset of *query.KairosClient the metadata
// passthrough handlers need (spec §6's metricnames/tagnames/tagvalues and
// query/tags endpoints) — named so tests can substitute a stub.
type MetadataProxy interface {
	ProxyRaw(ctx context.Context, method, path string, query map[string]string, body []byte) ([]byte, error)
}

// modeHeader is the response header spec §6 attaches to the cached query
// path, reporting the classification(s) that served the request.
const modeHeader = "X-tscached-mode"

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("tscached: caching proxy for a time-series database\n"))
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(Version))
}

func (h *Handler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleQuery is the cached query path (spec §4.8): parse, fan out one
// coherence-engine call per KQuery, translate typed failures, aggregate,
// annotate with the overall mode header.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	payload, err := readQueryPayload(r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	kqs, err := query.FromRequest(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	now := time.Now()
	aggregate := series.Response{}
	modes := make(map[coherence.Mode]struct{})

	eligible := readahead.ShouldAddToReadahead(h.Eligible, r.Referer(), map[string]string{
		h.Eligible.HTTPHeaderName: r.Header.Get(h.Eligible.HTTPHeaderName),
	})

	for _, kq := range kqs {
		if eligible {
			if err := h.Cache.SetAdd(r.Context(), fingerprint.Singleton(fingerprint.TypeShadowList), kq.Key); err != nil {
				level.Warn(tslog.Logger).Log("msg", "failed to track kquery for read-ahead", "key", kq.Key, "err", err)
			}
		}

		resp, mode, err := h.Engine.ProcessCacheHit(r.Context(), kq, now)
		if err != nil {
			var backendErr *errs.BackendFailure
			if errors.As(err, &backendErr) {
				writeJSONError(w, http.StatusInternalServerError, err)
				return
			}

			var cacheErr *errs.CacheFailure
			if errors.As(err, &cacheErr) {
				level.Warn(tslog.Logger).Log("msg", "cache failure, degrading to direct proxy", "key", kq.Key, "err", err)
				resp, err = h.coldProxy(r.Context(), kq)
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err)
					return
				}
				mode = "cold_proxy"
			} else {
				writeJSONError(w, http.StatusInternalServerError, err)
				return
			}
		}

		modes[mode] = struct{}{}
		for _, s := range resp.Results {
			aggregate.Add(s)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(modeHeader, string(overallMode(modes)))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"queries": []series.Response{aggregate}})
}

// coldProxy serves kq directly from the TSDB, bypassing the cache
// entirely (spec §7 CacheFailure recovery: "treat as cache miss and serve
// a direct COLD proxy").
func (h *Handler) coldProxy(ctx context.Context, kq *query.KQuery) (series.Response, error) {
	startSec, endSec, err := timerange.Resolve(kq.Window, time.Now())
	if err != nil {
		return series.Response{}, errs.NewBackendFailure("resolving request window", err)
	}
	startMs := startSec * 1000
	endMs := endSec * 1000
	w := timerange.Window{StartAbsoluteMs: &startMs, EndAbsoluteMs: &endMs}
	return h.Engine.Kairos.ProxyToKairos(ctx, kq.Metric, w)
}

// overallMode collapses the per-KQuery modes seen in one request into the
// single header value spec §4.8 wants: the mode itself if every KQuery
// agreed, else "mixed".
func overallMode(modes map[coherence.Mode]struct{}) coherence.Mode {
	if len(modes) == 1 {
		for m := range modes {
			return m
		}
	}
	return "mixed"
}

// readQueryPayload parses the request body for POST, or the "query" query
// parameter for GET (spec §6).
func readQueryPayload(r *http.Request) (map[string]interface{}, error) {
	var raw []byte
	var err error
	if r.Method == http.MethodGet {
		raw = []byte(r.URL.Query().Get("query"))
	} else {
		raw, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// handleQueryTags, handleMetricNames, handleTagNames, handleTagValues are
// the read-through passthrough endpoints (spec §6): cache the TSDB's
// verbatim response under a per-endpoint TTL, keyed by the request's own
// shape so distinct queries/filters don't collide.
func (h *Handler) handleMetricNames(w http.ResponseWriter, r *http.Request) {
	h.passthroughGET(w, r, fingerprint.TypeMetricNames, "/api/v1/metricnames", h.Expiry.MetricNames)
}

func (h *Handler) handleTagNames(w http.ResponseWriter, r *http.Request) {
	h.passthroughGET(w, r, fingerprint.TypeTagNames, "/api/v1/tagnames", h.Expiry.TagNames)
}

func (h *Handler) handleTagValues(w http.ResponseWriter, r *http.Request) {
	h.passthroughGET(w, r, fingerprint.TypeTagValues, "/api/v1/tagvalues", h.Expiry.TagValues)
}

func (h *Handler) handleQueryTags(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	var basis interface{}
	if err := json.Unmarshal(body, &basis); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	key, err := fingerprint.Key(fingerprint.TypeMetaQuery, basis)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	cached, ok := h.readCached(r.Context(), key)
	if ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	resp, err := h.Kairos.ProxyRaw(r.Context(), http.MethodPost, "/api/v1/datapoints/query/tags", nil, body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeCached(r.Context(), key, resp, h.Expiry.MetaQuery)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

// passthroughGET serves one of the no-body GET metadata endpoints,
// keying the cache on the endpoint name plus its raw query string so
// distinct filters don't collide.
func (h *Handler) passthroughGET(w http.ResponseWriter, r *http.Request, cacheType fingerprint.CacheType, path string, ttl time.Duration) {
	key, err := fingerprint.Key(cacheType, r.URL.RawQuery)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	if cached, ok := h.readCached(r.Context(), key); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	q := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			q[k] = vs[0]
		}
	}
	resp, err := h.Kairos.ProxyRaw(r.Context(), http.MethodGet, path, q, nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeCached(r.Context(), key, resp, ttl)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

func (h *Handler) readCached(ctx context.Context, key string) ([]byte, bool) {
	b, err := h.Cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (h *Handler) writeCached(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := h.Cache.Set(ctx, key, value, ttl); err != nil {
		level.Warn(tslog.Logger).Log("msg", "failed to cache metadata passthrough response", "key", key, "err", err)
	}
}

// handleFlushall clears the entire KV-store, guarded by acquiring the
// read-ahead lock first so a live read-ahead pass can't race the flush
// (spec §6). Without orly=yarly it cowardly refuses.
func (h *Handler) handleFlushall(w http.ResponseWriter, r *http.Request) {
	message := "Cowardly refusing to act, add orly=yarly to execute a cache flush."

	if r.URL.Query().Get("orly") == "yarly" {
		_, ok, err := readahead.BecomeLeader(r.Context(), h.Cache, h.Shadow.LeaderExpiration)
		switch {
		case err != nil:
			message = "Could not acquire the read-ahead lock: " + err.Error()
		case !ok:
			message = "Could not acquire the read-ahead lock. Is a read-ahead pass taking place? (Or just try again.)"
		default:
			// the lock need not be released: flushall deletes it along with
			// everything else.
			if err := h.Cache.FlushAll(r.Context()); err != nil {
				message = "Flush failed: " + err.Error()
			} else {
				message = "Cache flushed."
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
