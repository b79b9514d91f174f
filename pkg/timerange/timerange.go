// Package timerange implements C1: parsing the request's relative/absolute
// time window into absolute instants, deciding what range (if any) needs
// fetching against a cached window, and splitting a window into the
// overlapping chunks the COLD path fetches in parallel (spec §4.1).
//
// Sub-second resolution is dropped throughout: every absolute instant here
// is whole seconds since epoch, matching the upstream TSDB's own second
// granularity.
package timerange

import (
	"fmt"
	"time"
)

// Unit is one of the relative-time units the request body may carry.
type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
	UnitWeeks   Unit = "weeks"
	UnitMonths  Unit = "months"
	UnitYears   Unit = "years"
)

// seconds per unit. months and years are fixed-length per spec §4.1 (no
// calendar awareness: months=31d, years=365d).
var unitSeconds = map[Unit]int64{
	UnitSeconds: 1,
	UnitMinutes: 60,
	UnitHours:   3600,
	UnitDays:    86400,
	UnitWeeks:   86400 * 7,
	UnitMonths:  86400 * 31,
	UnitYears:   86400 * 365,
}

// Relative is a {value, unit} pair as carried in start_relative/end_relative.
type Relative struct {
	Value int64 `json:"value"`
	Unit  Unit  `json:"unit"`
}

// Seconds returns how many seconds r represents, or an error for an
// unrecognized unit.
func (r Relative) Seconds() (int64, error) {
	sec, ok := unitSeconds[r.Unit]
	if !ok {
		return 0, fmt.Errorf("unrecognized relative time unit %q", r.Unit)
	}
	return r.Value * sec, nil
}

// Window is the subset of the request body describing its time bounds.
// Exactly the four fields spec §4.1 names; any may be nil/zero.
type Window struct {
	StartRelative  *Relative `json:"start_relative,omitempty"`
	EndRelative    *Relative `json:"end_relative,omitempty"`
	StartAbsoluteMs *int64   `json:"start_absolute,omitempty"`
	EndAbsoluteMs   *int64   `json:"end_absolute,omitempty"`
}

// Resolve converts w into absolute instants (whole seconds since epoch).
// Absolute wins over relative; a missing end means "now". now is passed in
// explicitly so callers can make resolution deterministic in tests.
func Resolve(w Window, now time.Time) (startSec, endSec int64, err error) {
	nowSec := now.Unix()

	switch {
	case w.StartAbsoluteMs != nil:
		startSec = *w.StartAbsoluteMs / 1000
	case w.StartRelative != nil:
		d, serr := w.StartRelative.Seconds()
		if serr != nil {
			return 0, 0, serr
		}
		startSec = nowSec - d
	default:
		return 0, 0, fmt.Errorf("window has neither start_absolute nor start_relative")
	}

	switch {
	case w.EndAbsoluteMs != nil:
		endSec = *w.EndAbsoluteMs / 1000
	case w.EndRelative != nil:
		d, eerr := w.EndRelative.Seconds()
		if eerr != nil {
			return 0, 0, eerr
		}
		endSec = nowSec - d
	default:
		endSec = nowSec
	}

	return startSec, endSec, nil
}

// Outcome classifies the result of GetRangeNeeded.
type Outcome int

const (
	// NoWork means the cache already covers the request (possibly modulo a
	// staleness budget at the tail).
	NoWork Outcome = iota
	// FetchAll means the cache is empty, malformed, or covers only a
	// disjoint middle subset — fetch the entire requested window.
	FetchAll
	// FetchBefore means the cache covers the tail but is missing the head.
	FetchBefore
	// FetchAfter means the cache covers the head but is missing the tail.
	FetchAfter
)

func (o Outcome) String() string {
	switch o {
	case NoWork:
		return "no_work"
	case FetchAll:
		return "fetch_all"
	case FetchBefore:
		return "fetch_before"
	case FetchAfter:
		return "fetch_after"
	default:
		return "unknown"
	}
}

// RangeNeeded is the result of GetRangeNeeded: the (possibly empty) range
// still to fetch, and how it was classified.
type RangeNeeded struct {
	Start   int64
	End     int64
	Outcome Outcome
}

// GetRangeNeeded implements the table in spec §4.1. cacheValid is false
// when the cache entry is absent or failed to parse (treated as "empty").
func GetRangeNeeded(startReq, endReq, startCache, endCache int64, cacheValid bool, staleness time.Duration) RangeNeeded {
	if !cacheValid {
		return RangeNeeded{Start: startReq, End: endReq, Outcome: FetchAll}
	}

	coversStart := startCache <= startReq
	coversEnd := endCache >= endReq

	if coversStart && coversEnd {
		return RangeNeeded{Outcome: NoWork}
	}

	if coversStart {
		// missing tail
		if time.Duration(endReq-endCache)*time.Second < staleness {
			return RangeNeeded{Outcome: NoWork}
		}
		return RangeNeeded{Start: endCache, End: endReq, Outcome: FetchAfter}
	}

	if coversEnd {
		// missing head
		return RangeNeeded{Start: startReq, End: startCache, Outcome: FetchBefore}
	}

	// covers only a middle subset: treat as a cold fetch of the whole window.
	return RangeNeeded{Start: startReq, End: endReq, Outcome: FetchAll}
}

// Chunk is one slice of a chunked fetch, stamped with its generation Index
// (0 = newest). The chunked backend fetch (C5) keys its parallel results by
// this Index; the COLD-path merge (C6) walks chunks from the highest Index
// (oldest) down to 0 (newest).
type Chunk struct {
	Start int64
	End   int64
	Index int
}

// GetChunkedTimeRanges splits [start, end) into newest-first chunks of
// chunkLength, each chunk's End landing one second after the previous
// (newer) chunk's Start — a deliberate one-second overlap at the seam so
// the TSDB's partial-window aggregation can't silently drop an edge point;
// the resulting duplicate is resolved downstream by the seam merge (§4.4).
// The oldest chunk is clipped to start.
func GetChunkedTimeRanges(start, end int64, chunkLength time.Duration) []Chunk {
	chunkSec := int64(chunkLength / time.Second)
	if chunkSec <= 0 {
		chunkSec = 1
	}

	var chunks []Chunk
	curEnd := end
	idx := 0
	for curEnd > start {
		curStart := curEnd - chunkSec
		if curStart < start {
			curStart = start
		}
		chunks = append(chunks, Chunk{Start: curStart, End: curEnd, Index: idx})
		if curStart <= start {
			break
		}
		curEnd = curStart + 1
		idx++
	}
	return chunks
}
