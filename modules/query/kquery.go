// Package query implements C5: the cached query record (KQuery) and its
// TSDB proxying — single-shot and chunked-parallel. Grounded on
// original_source/tscached/kquery.py for the record shape, and on
// cmd/tempo-federated-querier/querier.go's QueryAllInstances for the
// bounded-fan-out pattern the chunked proxy reuses.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/pkg/fingerprint"
	"github.com/tscached/tscached/pkg/timerange"
)

// DefaultTTL matches the upstream TSDB's own retention assumption (spec §3).
const DefaultTTL = 3 * time.Hour

// Metric is one metric-query body as sent to/from the TSDB: an opaque,
// canonically-JSON-able map rather than a fixed struct, since the TSDB's
// query shape (tags, group_by, aggregators, and any metric-specific
// extension fields) is itself open-ended.
type Metric map[string]interface{}

// Name returns the metric's "name" field, or "" if absent/non-string.
func (m Metric) Name() string {
	name, _ := m["name"].(string)
	return name
}

// Tags returns the metric's "tags" field as a map, or nil.
func (m Metric) Tags() map[string]interface{} {
	tags, _ := m["tags"].(map[string]interface{})
	return tags
}

// GroupBy returns the metric's "group_by" field, or nil.
func (m Metric) GroupBy() interface{} {
	return m["group_by"]
}

// Aggregators returns the metric's normalized "aggregators" field, or nil.
func (m Metric) Aggregators() []map[string]interface{} {
	switch raw := m["aggregators"].(type) {
	case []map[string]interface{}:
		return raw
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(raw))
		for _, a := range raw {
			if am, ok := a.(map[string]interface{}); ok {
				out = append(out, am)
			}
		}
		return out
	}
	return nil
}

// Record is the persisted KQuery value (spec §3): the original query
// body, the series it produced last time, and the bounds of the data
// currently cached under those series.
type Record struct {
	Query        Metric   `json:"query"`
	MTSKeys      []string `json:"mts_keys"`
	EarliestData int64    `json:"earliest_data"`
	LastAddData  int64    `json:"last_add_data"`
}

// KQuery is the in-memory, per-request handle to one metric query: its
// normalized body, the request window it's being evaluated against, its
// fingerprint, and (once loaded) the cached record's bounds.
type KQuery struct {
	Metric Metric
	Window timerange.Window
	Key    string

	// CacheValid is true once Load has successfully found and parsed a
	// cached record. A false value after Load means "treat as empty"
	// (spec §4.1's get_range_needed "cache empty or malformed" case).
	CacheValid   bool
	EarliestData int64
	LastAddData  int64
	MTSKeys      []string
}

// FromRequest builds one KQuery per metric in the request payload (spec
// §4.5 from_request). The window fields (start_relative, end_relative,
// start_absolute, end_absolute) are shared across every metric in the
// payload, matching the TSDB's native query shape.
func FromRequest(payload map[string]interface{}) ([]*KQuery, error) {
	w, err := windowFromPayload(payload)
	if err != nil {
		return nil, err
	}

	rawMetrics, _ := payload["metrics"].([]interface{})
	out := make([]*KQuery, 0, len(rawMetrics))
	for _, rm := range rawMetrics {
		m, ok := rm.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("metric entry is not an object")
		}
		metric := normalizeMetric(Metric(m))

		key, err := fingerprint.Key(fingerprint.TypeKQuery, map[string]interface{}(metric))
		if err != nil {
			return nil, fmt.Errorf("fingerprinting metric query: %w", err)
		}

		out = append(out, &KQuery{Metric: metric, Window: w, Key: key})
	}
	return out, nil
}

// normalizeMetric returns m with its aggregators normalized (spec §4.2):
// align_sampling replaced by align_start_time before this metric is ever
// fingerprinted or sent to the TSDB. A metric with an aggregators array is
// copied first; one without is returned as is.
func normalizeMetric(m Metric) Metric {
	rawAggs, ok := m["aggregators"].([]interface{})
	if !ok {
		return m
	}
	aggs := make([]map[string]interface{}, 0, len(rawAggs))
	for _, a := range rawAggs {
		if am, ok := a.(map[string]interface{}); ok {
			aggs = append(aggs, am)
		}
	}
	normalized := fingerprint.NormalizeAggregators(aggs)

	out := make(Metric, len(m))
	for k, v := range m {
		out[k] = v
	}
	normalizedAny := make([]interface{}, len(normalized))
	for i, a := range normalized {
		normalizedAny[i] = a
	}
	out["aggregators"] = normalizedAny
	return out
}

func windowFromPayload(payload map[string]interface{}) (timerange.Window, error) {
	var w timerange.Window
	if v, ok := payload["start_relative"].(map[string]interface{}); ok {
		r := timerange.Relative{
			Value: toInt64(v["value"]),
			Unit:  timerange.Unit(fmt.Sprint(v["unit"])),
		}
		w.StartRelative = &r
	}
	if v, ok := payload["end_relative"].(map[string]interface{}); ok {
		r := timerange.Relative{
			Value: toInt64(v["value"]),
			Unit:  timerange.Unit(fmt.Sprint(v["unit"])),
		}
		w.EndRelative = &r
	}
	if v, ok := payload["start_absolute"]; ok {
		ms := toInt64(v)
		w.StartAbsoluteMs = &ms
	}
	if v, ok := payload["end_absolute"]; ok {
		ms := toInt64(v)
		w.EndAbsoluteMs = &ms
	}
	if w.StartRelative == nil && w.StartAbsoluteMs == nil {
		return w, fmt.Errorf("request window has neither start_relative nor start_absolute")
	}
	return w, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Load fetches and parses this KQuery's cached record. A missing or
// unparsable record leaves CacheValid false (treated as empty, spec
// §4.1) rather than returning an error — only a genuine KV-store error
// is surfaced.
func (q *KQuery) Load(ctx context.Context, c cache.Client) error {
	raw, err := c.Get(ctx, q.Key)
	if err == cache.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var rec Record
	if err := unmarshalRecord(raw, &rec); err != nil {
		return nil // malformed cached record: treated as absent.
	}

	q.CacheValid = true
	q.EarliestData = rec.EarliestData
	q.LastAddData = rec.LastAddData
	q.MTSKeys = rec.MTSKeys
	if q.Metric == nil {
		// the read-ahead worker only has this KQuery's key (from
		// shadow_list) and reconstructs the metric body from the record.
		q.Metric = rec.Query
	}
	return nil
}

// Upsert writes this KQuery's record, overwriting any previous value
// (spec §4.5 upsert).
func (q *KQuery) Upsert(ctx context.Context, c cache.Client, startTime, endTime int64, mtsKeys []string, ttl time.Duration) error {
	rec := Record{
		Query:        q.Metric,
		MTSKeys:      mtsKeys,
		EarliestData: startTime,
		LastAddData:  endTime,
	}
	b, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("marshaling kquery record: %w", err)
	}
	return c.Set(ctx, q.Key, b, ttl)
}
