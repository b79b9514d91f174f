// Package series implements C4: one metric-time-series (MTS) — its
// identity, the seam merges, trimming, and TTL expiry described in spec
// §4.4. Grounded on original_source/tscached/mts.py, generalized to the
// richer merge/trim/expiry rules spec.md adds on top of that original.
package series

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tscached/tscached/pkg/fingerprint"
)

// Default tunables from spec §3/§4.4.
const (
	DefaultTTL          = 3 * time.Hour
	DefaultGCThreshold   = 210 * time.Minute // 3.5h = 12600s
	DefaultExpiryWindow  = 3 * time.Hour     // 10800s
	DefaultMergeCutoff  = 10
	DefaultAcceptableSkew = 6
)

// Point is one (timestamp_ms, value) sample. It marshals as the TSDB's
// native 2-element array shape.
type Point struct {
	TsMs  int64
	Value float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.TsMs, p.Value})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var arr [2]json.Number
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("unmarshaling point: %w", err)
	}
	ts, err := arr[0].Int64()
	if err != nil {
		return fmt.Errorf("point timestamp: %w", err)
	}
	val, err := arr[1].Float64()
	if err != nil {
		return fmt.Errorf("point value: %w", err)
	}
	p.TsMs, p.Value = ts, val
	return nil
}

// Series is one MTS payload: identity fields plus its ordered values.
// Tags here are the TSDB response's (possibly expanded) tags — used for
// display, never for key derivation (spec §4.2: key tags come from the
// originating query).
type Series struct {
	Name        string                   `json:"name"`
	Tags        map[string]interface{}   `json:"tags"`
	GroupBy     interface{}              `json:"group_by,omitempty"`
	Aggregators []map[string]interface{} `json:"aggregators,omitempty"`
	Values      []Point                  `json:"values"`
}

// Key derives this series' MTS cache key. queryTags must come from the
// originating KQuery's body, not from s.Tags (spec §4.2) — using the
// response's expanded tags would split one cached series into many
// per-tag-value series on every refresh.
func Key(queryTags map[string]interface{}, s Series) (string, error) {
	basis := fingerprint.MTSKeyBasis(s.Name, queryTags, s.GroupBy, s.Aggregators)
	return fingerprint.Key(fingerprint.TypeMTS, basis)
}

// DeepCopy returns a copy of s whose Values/Tags slices/maps share no
// backing storage with s, so trimming or further mutation of the copy
// never touches the cached object (spec §4.4 build_response).
func (s Series) DeepCopy() Series {
	out := Series{
		Name:    s.Name,
		GroupBy: s.GroupBy,
	}
	if s.Tags != nil {
		out.Tags = make(map[string]interface{}, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Aggregators != nil {
		out.Aggregators = make([]map[string]interface{}, len(s.Aggregators))
		copy(out.Aggregators, s.Aggregators)
	}
	out.Values = make([]Point, len(s.Values))
	copy(out.Values, s.Values)
	return out
}

// Marshal serializes s as the canonical JSON value written to the
// KV-store.
func (s Series) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a cached MTS value. A parse failure is treated by
// callers the same as a cache miss on that series ("series vanished",
// spec §3).
func Unmarshal(data []byte) (Series, error) {
	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		return Series{}, fmt.Errorf("unmarshaling series: %w", err)
	}
	return s, nil
}
