package series

// MergeAtEnd implements spec §4.4's "merge at end": cached gains new,
// newer data appended at its tail, with the seam deduplicated in favor
// of new (new wins at the seam).
//
// Walk cached backward from its last point; find the smallest offset k
// (1-based from the end) such that cached[-k].ts is strictly before
// new[0].ts. That point and everything before it are kept; the k-1
// points after it (the overlapping tail) are dropped, and new is
// appended. k=1 means no overlap at all — pure concatenation.
//
// Two degenerate outcomes: if the search runs past the start of cached
// before finding such a k, cached is too short to anchor a seam and is
// replaced outright by new. If cutoff offsets are exhausted without
// finding one, the overlap is pathologically large and the merge is
// aborted (ok=false, cached returned unchanged).
func MergeAtEnd(cached, newValues []Point, cutoff int) (merged []Point, ok bool) {
	if len(newValues) == 0 {
		return cached, true
	}
	n := len(cached)
	newStart := newValues[0].TsMs

	for k := 1; k <= cutoff; k++ {
		if k > n {
			return append([]Point{}, newValues...), true
		}
		idx := n - k
		if cached[idx].TsMs < newStart {
			out := make([]Point, 0, idx+1+len(newValues))
			out = append(out, cached[:idx+1]...)
			out = append(out, newValues...)
			return out, true
		}
	}
	return cached, false
}

// MergeAtBeginning is MergeAtEnd's mirror for read-ahead fetches that
// extend a series backward in time (spec §4.4, §4.7). Find the smallest
// forward offset f such that cached[f].ts is strictly after new's last
// point; prepend new before cached[f:], dropping cached's first f
// points (the overlapping head) in favor of new's version.
func MergeAtBeginning(cached, newValues []Point, cutoff int) (merged []Point, ok bool) {
	if len(newValues) == 0 {
		return cached, true
	}
	n := len(cached)
	newEnd := newValues[len(newValues)-1].TsMs

	for f := 0; f < cutoff; f++ {
		if f >= n {
			return append([]Point{}, newValues...), true
		}
		if cached[f].TsMs > newEnd {
			out := make([]Point, 0, len(newValues)+n-f)
			out = append(out, newValues...)
			out = append(out, cached[f:]...)
			return out, true
		}
	}
	return cached, false
}
