package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/pkg/config"
	"github.com/tscached/tscached/pkg/fingerprint"
)

func onePointResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]interface{}{
		"queries": []map[string]interface{}{{
			"sample_size": 1,
			"results": []map[string]interface{}{
				{"name": "cpu.load", "tags": map[string]interface{}{}, "values": [][2]int64{{1_700_000_000_000, 42}}},
			},
		}},
	}
	b, _ := json.Marshal(body)
	_, _ = w.Write(b)
}

// newTestHandler wires a Handler against a miniredis cache and an
// httptest stand-in for kairosdb, the same fixture shape
// modules/coherence's engine_test.go uses.
func newTestHandler(t *testing.T, kairosHandler http.HandlerFunc) (*Handler, cache.Client) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	c := cache.NewRedisClient(server.Addr())

	kairos := httptest.NewServer(kairosHandler)
	t.Cleanup(kairos.Close)
	u, err := url.Parse(kairos.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	kc := query.NewKairosClient(u.Hostname(), port)

	engine := &coherence.Engine{
		Cache:                c,
		Kairos:               kc,
		Staleness:            30 * time.Second,
		ChunkLength:          time.Hour,
		PerChunkTimeout:      query.DefaultPerChunkTimeout,
		ExpectedResolutionMs: 10000,
		MergeCutoff:          10,
		AcceptableSkew:       6,
		KQueryTTL:            3 * time.Hour,
		MTSTTL:               3 * time.Hour,
		GCThreshold:          210 * time.Minute,
		ExpiryWindow:         3 * time.Hour,
	}

	return &Handler{
		Engine: engine,
		Cache:  c,
		Kairos: kc,
		Shadow: config.ShadowConfig{LeaderExpiration: time.Minute},
		Expiry: config.ExpiryConfig{
			MetricNames: 5 * time.Minute,
			TagNames:    5 * time.Minute,
			TagValues:   5 * time.Minute,
			MetaQuery:   5 * time.Minute,
		},
	}, c
}

func queryPayload() []byte {
	body := map[string]interface{}{
		"start_relative": map[string]interface{}{"value": 15, "unit": "minutes"},
		"metrics":        []interface{}{map[string]interface{}{"name": "cpu.load"}},
	}
	b, _ := json.Marshal(body)
	return b
}

func TestHandleQueryColdMissSetsModeHeader(t *testing.T) {
	h, _ := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query", bytes.NewReader(queryPayload()))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "cold_miss", rr.Header().Get(modeHeader))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	queries, ok := decoded["queries"].([]interface{})
	require.True(t, ok)
	require.Len(t, queries, 1)
}

func TestHandleQueryHotOnSecondRequest(t *testing.T) {
	calls := 0
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		onePointResponse(w, r)
	})
	router := NewRouter(h)

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query", bytes.NewReader(queryPayload()))
	rr1 := httptest.NewRecorder()
	router.ServeHTTP(rr1, req1)
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, 1, calls)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query", bytes.NewReader(queryPayload()))
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req2)
	require.Equal(t, http.StatusOK, rr2.Code)
	require.Equal(t, "hot", rr2.Header().Get(modeHeader))
	require.Equal(t, 1, calls, "hot path must not call the backend again")
}

func TestHandleQueryBadJSONReturns500(t *testing.T) {
	h, _ := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	require.NotEmpty(t, decoded["error"])
}

func TestHandleQueryBackendFailureReturns500(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query", bytes.NewReader(queryPayload()))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleHealthCheck(t *testing.T) {
	h, _ := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/check", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleVersionAndRoot(t *testing.T) {
	h, _ := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, Version, rr.Body.String())

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr2.Code)
	require.NotEmpty(t, rr2.Body.String())
}

func TestHandleMetricNamesCachesResponse(t *testing.T) {
	calls := 0
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["cpu.load","mem.used"]`))
	})
	router := NewRouter(h)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metricnames", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.JSONEq(t, `["cpu.load","mem.used"]`, rr.Body.String())
	}
	require.Equal(t, 1, calls, "second call must be served from cache")
}

func TestHandleQueryTagsCachesByBody(t *testing.T) {
	calls := 0
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"name":"cpu.load","tags":{"host":["a","b"]}}]}`))
	})
	router := NewRouter(h)

	body := []byte(`{"metrics":[{"name":"cpu.load"}]}`)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/datapoints/query/tags", bytes.NewReader(body))
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Equal(t, 1, calls)
}

func TestHandleFlushallRefusesWithoutOrly(t *testing.T) {
	h, c := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	require.NoError(t, c.Set(context.Background(), "tscached:kquery:keepme", []byte("x"), time.Minute))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/maintenance/flushall", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := c.Get(context.Background(), "tscached:kquery:keepme")
	require.NoError(t, err, "refused flush must not touch the cache")
}

func TestHandleFlushallExecutesWithOrly(t *testing.T) {
	h, c := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	require.NoError(t, c.Set(context.Background(), "tscached:kquery:gone", []byte("x"), time.Minute))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/maintenance/flushall?orly=yarly", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := c.Get(context.Background(), "tscached:kquery:gone")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestHandleFlushallRefusesWhileLeaderLockHeld(t *testing.T) {
	h, _ := newTestHandler(t, onePointResponse)
	router := NewRouter(h)

	held, err := h.Cache.AcquireLock(context.Background(), fingerprint.Singleton(fingerprint.TypeShadowLock), "some-other-host", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/maintenance/flushall?orly=yarly", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	require.Contains(t, decoded["message"], "Could not acquire")
}
