// Package fingerprint implements C2: deterministic cache keys for KQuery
// and MTS records, and the aggregator-alignment normalization spec §4.2
// requires before fingerprinting (and before sending to the TSDB).
package fingerprint

import (
	"crypto/md5" //nolint:gosec // cache key, not a security token — spec §3 explicitly allows MD5.
	"encoding/json"
	"fmt"
)

// CacheType is the "<type>" segment of a tscached:<type>:<digest> key
// (spec §3).
type CacheType string

const (
	TypeKQuery       CacheType = "kquery"
	TypeMTS          CacheType = "mts"
	TypeMetricNames  CacheType = "metricnames"
	TypeTagNames     CacheType = "tagnames"
	TypeTagValues    CacheType = "tagvalues"
	TypeMetaQuery    CacheType = "metaquery"
	TypeShadowList   CacheType = "shadow_list"
	TypeShadowServer CacheType = "shadow_server"
	TypeShadowLock   CacheType = "shadow_lock"
)

// Key serializes basis as canonical JSON and hashes it into a
// tscached:<type>:<hex-digest> key (spec §3). Struct fields marshal in
// declaration order and map keys marshal sorted, so the same logical
// value always produces the same bytes.
func Key(typ CacheType, basis interface{}) (string, error) {
	b, err := json.Marshal(basis)
	if err != nil {
		return "", fmt.Errorf("marshaling key basis for %s: %w", typ, err)
	}
	sum := md5.Sum(b) //nolint:gosec
	return fmt.Sprintf("tscached:%s:%x", typ, sum), nil
}

// Singleton returns a fixed, type-only key for the non-fingerprinted
// singletons in spec §3/§6 (shadow_list, shadow_server, shadow_lock).
func Singleton(typ CacheType) string {
	return fmt.Sprintf("tscached:%s", typ)
}

// NormalizeAggregators returns a copy of aggregators (one metric query's
// "aggregators" array) with every align_sampling flag replaced by
// align_start_time: true (spec §4.2). Sampling-aligned windows yield
// partial buckets at chunk boundaries; start-time-aligned windows tile
// deterministically, which the seam merge depends on. Idempotent: running
// it twice on its own output is a no-op.
func NormalizeAggregators(aggregators []map[string]interface{}) []map[string]interface{} {
	if aggregators == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(aggregators))
	for i, agg := range aggregators {
		cp := make(map[string]interface{}, len(agg))
		for k, v := range agg {
			cp[k] = v
		}
		if _, ok := cp["align_sampling"]; ok {
			delete(cp, "align_sampling")
			cp["align_start_time"] = true
		}
		out[i] = cp
	}
	return out
}

// MTSKeyBasis builds the MTS key-basis (spec §4.2): name, tags, and
// optional group_by/aggregators, where tags come from the originating
// KQuery's body, never from the TSDB response.
func MTSKeyBasis(name string, tags map[string]interface{}, groupBy interface{}, aggregators []map[string]interface{}) map[string]interface{} {
	basis := map[string]interface{}{
		"name": name,
		"tags": tags,
	}
	if groupBy != nil {
		basis["group_by"] = groupBy
	}
	if len(aggregators) > 0 {
		basis["aggregators"] = aggregators
	}
	return basis
}
