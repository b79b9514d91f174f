package series

// RobustTrim filters values to the closed interval [startSec, endSec]
// (endSec nil means open-ended) by scanning every point. Always correct;
// O(n) regardless of sample regularity. Grounded on mts.py's linear-scan
// trim, used whenever the efficient path's constraints don't hold.
func RobustTrim(values []Point, startSec int64, endSec *int64) []Point {
	startMs := startSec * 1000
	out := make([]Point, 0, len(values))
	for _, p := range values {
		if p.TsMs < startMs {
			continue
		}
		if endSec != nil && p.TsMs > *endSec*1000 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ConformsToEfficientConstraints reports whether values are regular
// enough for EfficientTrim's index-arithmetic shortcut: at least two
// points, and the actual point count within acceptableSkew of the count
// implied by (span / expectedResolutionMs).
func ConformsToEfficientConstraints(values []Point, expectedResolutionMs int64, acceptableSkew int) bool {
	if len(values) < 2 || expectedResolutionMs <= 0 {
		return false
	}
	span := values[len(values)-1].TsMs - values[0].TsMs
	expectedCount := span / expectedResolutionMs
	actualCount := int64(len(values))
	diff := expectedCount - actualCount
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(acceptableSkew)
}

// EfficientTrim trims by computing offsets from the series' last
// timestamp using its expected sampling resolution, avoiding a full
// linear scan. Callers must first confirm ConformsToEfficientConstraints
// — on irregular series this produces wrong offsets.
func EfficientTrim(values []Point, startSec int64, endSec *int64, expectedResolutionMs int64) []Point {
	n := len(values)
	if n == 0 {
		return values
	}
	lastTs := values[n-1].TsMs

	startFromEnd := (lastTs - startSec*1000) / expectedResolutionMs
	startIdx := n - int(startFromEnd) - 1
	startIdx = clampIndex(startIdx, 0, n)

	if endSec == nil {
		return values[startIdx:]
	}

	endFromEnd := (lastTs - *endSec*1000) / expectedResolutionMs
	endIdx := n - int(endFromEnd)
	endIdx = clampIndex(endIdx, 0, n)
	if endIdx < startIdx {
		endIdx = startIdx
	}
	return values[startIdx:endIdx]
}

func clampIndex(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}
