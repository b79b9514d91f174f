package series

import "time"

// TTLExpire implements spec §4.4's garbage-collection rule, distinct
// from the KV-store TTL: once a series' oldest retained point is older
// than gcThreshold, the series is truncated down to expiryWindow rather
// than evicted outright, so a long-idle series doesn't force a full
// cold refetch the next time it's requested.
//
// Returns the (possibly unchanged) values, the new oldest retained
// timestamp in seconds when a truncation happened, and whether anything
// changed.
func TTLExpire(values []Point, gcThreshold, expiryWindow time.Duration, nowSec int64) ([]Point, *int64, bool) {
	if len(values) == 0 {
		return values, nil, false
	}
	oldestSec := values[0].TsMs / 1000
	if time.Duration(nowSec-oldestSec)*time.Second <= gcThreshold {
		return values, nil, false
	}

	cutoffSec := nowSec - int64(expiryWindow.Seconds())
	trimmed := RobustTrim(values, cutoffSec, nil)
	if len(trimmed) == 0 {
		return trimmed, nil, true
	}
	newEarliest := trimmed[0].TsMs / 1000
	return trimmed, &newEarliest, true
}
