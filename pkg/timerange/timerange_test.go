package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveRelative(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	w := Window{StartRelative: &Relative{Value: 15, Unit: UnitMinutes}}

	start, end, err := Resolve(w, now)
	require.NoError(t, err)
	require.Equal(t, now.Unix()-15*60, start)
	require.Equal(t, now.Unix(), end, "a missing end means now")
}

func TestResolveAbsoluteWinsOverRelative(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	startAbs := int64(1_699_000_000_000)
	w := Window{
		StartAbsoluteMs: &startAbs,
		StartRelative:   &Relative{Value: 1, Unit: UnitHours},
	}

	start, _, err := Resolve(w, now)
	require.NoError(t, err)
	require.Equal(t, startAbs/1000, start, "absolute wins, and sub-second resolution is dropped")
}

func TestResolveMissingStartErrors(t *testing.T) {
	_, _, err := Resolve(Window{}, time.Now())
	require.Error(t, err)
}

func TestResolveMonthsAndYearsAreFixedLength(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	wMonth := Window{StartRelative: &Relative{Value: 1, Unit: UnitMonths}}
	start, _, err := Resolve(wMonth, now)
	require.NoError(t, err)
	require.Equal(t, now.Unix()-31*86400, start)

	wYear := Window{StartRelative: &Relative{Value: 1, Unit: UnitYears}}
	start, _, err = Resolve(wYear, now)
	require.NoError(t, err)
	require.Equal(t, now.Unix()-365*86400, start)
}

func TestGetRangeNeededEmptyCache(t *testing.T) {
	r := GetRangeNeeded(100, 200, 0, 0, false, time.Second)
	require.Equal(t, FetchAll, r.Outcome)
	require.Equal(t, int64(100), r.Start)
	require.Equal(t, int64(200), r.End)
}

func TestGetRangeNeededCoversBoth(t *testing.T) {
	r := GetRangeNeeded(100, 200, 50, 250, true, time.Second)
	require.Equal(t, NoWork, r.Outcome)
}

func TestGetRangeNeededMissingTailWithinStaleness(t *testing.T) {
	r := GetRangeNeeded(100, 200, 50, 195, true, 30*time.Second)
	require.Equal(t, NoWork, r.Outcome)
}

func TestGetRangeNeededMissingTailBeyondStaleness(t *testing.T) {
	r := GetRangeNeeded(100, 200, 50, 100, true, 30*time.Second)
	require.Equal(t, FetchAfter, r.Outcome)
	require.Equal(t, int64(100), r.Start)
	require.Equal(t, int64(200), r.End)
}

func TestGetRangeNeededMissingHead(t *testing.T) {
	r := GetRangeNeeded(100, 200, 150, 250, true, time.Second)
	require.Equal(t, FetchBefore, r.Outcome)
	require.Equal(t, int64(100), r.Start)
	require.Equal(t, int64(150), r.End)
}

func TestGetRangeNeededMiddleOnly(t *testing.T) {
	r := GetRangeNeeded(100, 200, 130, 170, true, time.Second)
	require.Equal(t, FetchAll, r.Outcome)
	require.Equal(t, int64(100), r.Start)
	require.Equal(t, int64(200), r.End)
}

func TestGetRangeNeededWithinRequestBounds(t *testing.T) {
	// Property: the returned range is always within [start_req, end_req].
	for _, r := range []RangeNeeded{
		GetRangeNeeded(100, 200, 0, 0, false, time.Second),
		GetRangeNeeded(100, 200, 50, 100, true, 30*time.Second),
		GetRangeNeeded(100, 200, 150, 250, true, time.Second),
		GetRangeNeeded(100, 200, 130, 170, true, time.Second),
	} {
		if r.Outcome == NoWork {
			continue
		}
		require.GreaterOrEqual(t, r.Start, int64(100))
		require.LessOrEqual(t, r.End, int64(200))
	}
}

func TestGetChunkedTimeRangesCoversWindowNewestFirst(t *testing.T) {
	start := int64(0)
	end := int64(3600)
	chunks := GetChunkedTimeRanges(start, end, 10*time.Minute)

	require.NotEmpty(t, chunks)
	require.Equal(t, end, chunks[0].End, "first generated chunk is newest")
	last := chunks[len(chunks)-1]
	require.Equal(t, start, last.Start, "oldest chunk is clipped to the window start")

	for i, c := range chunks {
		require.Equal(t, i, c.Index)
		require.Less(t, c.Start, c.End)
	}

	// every point in [start, end) is covered by at least one chunk
	covered := make([]bool, end-start)
	for _, c := range chunks {
		for ts := c.Start; ts < c.End; ts++ {
			covered[ts-start] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "timestamp %d not covered by any chunk", start+int64(i))
	}
}

func TestGetChunkedTimeRangesSingleChunkWhenWindowSmallerThanChunk(t *testing.T) {
	chunks := GetChunkedTimeRanges(0, 100, time.Hour)
	require.Len(t, chunks, 1)
	require.Equal(t, int64(0), chunks[0].Start)
	require.Equal(t, int64(100), chunks[0].End)
}
