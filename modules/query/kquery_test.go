package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tscached/tscached/modules/cache"
)

func newTestCache(t *testing.T) cache.Client {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return cache.NewRedisClient(server.Addr())
}

func samplePayload() map[string]interface{} {
	return map[string]interface{}{
		"start_relative": map[string]interface{}{"value": float64(15), "unit": "minutes"},
		"metrics": []interface{}{
			map[string]interface{}{
				"name": "cpu.load",
				"tags": map[string]interface{}{"host": "*"},
				"aggregators": []interface{}{
					map[string]interface{}{"name": "avg", "align_sampling": true},
				},
			},
		},
	}
}

func TestFromRequestBuildsOneKQueryPerMetric(t *testing.T) {
	kqs, err := FromRequest(samplePayload())
	require.NoError(t, err)
	require.Len(t, kqs, 1)

	kq := kqs[0]
	require.Equal(t, "cpu.load", kq.Metric.Name())
	require.NotNil(t, kq.Window.StartRelative)
	require.Equal(t, int64(15), kq.Window.StartRelative.Value)
	require.Regexp(t, `^tscached:kquery:[0-9a-f]{32}$`, kq.Key)
}

func TestFromRequestNormalizesAggregators(t *testing.T) {
	kqs, err := FromRequest(samplePayload())
	require.NoError(t, err)

	aggs := kqs[0].Metric.Aggregators()
	require.Len(t, aggs, 1)
	require.NotContains(t, aggs[0], "align_sampling")
	require.Equal(t, true, aggs[0]["align_start_time"])
}

func TestFromRequestMissingWindowErrors(t *testing.T) {
	payload := map[string]interface{}{
		"metrics": []interface{}{map[string]interface{}{"name": "cpu.load"}},
	}
	_, err := FromRequest(payload)
	require.Error(t, err)
}

func TestKQueryLoadAbsentIsNotCacheValid(t *testing.T) {
	c := newTestCache(t)
	kq := &KQuery{Key: "tscached:kquery:deadbeef"}

	require.NoError(t, kq.Load(context.Background(), c))
	require.False(t, kq.CacheValid)
}

func TestKQueryUpsertThenLoadRoundTrip(t *testing.T) {
	c := newTestCache(t)
	kqs, err := FromRequest(samplePayload())
	require.NoError(t, err)
	kq := kqs[0]

	require.NoError(t, kq.Upsert(context.Background(), c, 1000, 2000, []string{"tscached:mts:abc"}, time.Hour))

	loaded := &KQuery{Key: kq.Key}
	require.NoError(t, loaded.Load(context.Background(), c))
	require.True(t, loaded.CacheValid)
	require.Equal(t, int64(1000), loaded.EarliestData)
	require.Equal(t, int64(2000), loaded.LastAddData)
	require.Equal(t, []string{"tscached:mts:abc"}, loaded.MTSKeys)
}

func TestKQueryLoadMalformedRecordIsNotCacheValid(t *testing.T) {
	c := newTestCache(t)
	kq := &KQuery{Key: "tscached:kquery:malformed"}
	require.NoError(t, c.Set(context.Background(), kq.Key, []byte("not json"), time.Hour))

	require.NoError(t, kq.Load(context.Background(), c))
	require.False(t, kq.CacheValid)
}
