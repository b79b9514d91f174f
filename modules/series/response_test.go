package series

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildResponseTrimsAndAccumulates(t *testing.T) {
	s := Series{Name: "cpu.load", Values: pts(1, 2, 3, 4, 5)}
	endSec := int64(4)

	var resp Response
	out := BuildResponse(s, 2, &endSec, true, 1000, DefaultAcceptableSkew, &resp)

	require.Equal(t, []int64{2, 3, 4}, tsOf(out.Values))
	require.Len(t, resp.Results, 1)
	require.Equal(t, 3, resp.SampleSize)
}

func TestBuildResponseNoTrimReturnsFullCopy(t *testing.T) {
	s := Series{Name: "cpu.load", Values: pts(1, 2, 3)}

	out := BuildResponse(s, 1, nil, false, 1000, DefaultAcceptableSkew, nil)
	require.Equal(t, tsOf(s.Values), tsOf(out.Values))

	// the copy is independent of the source series.
	out.Values[0].Value = 999
	require.NotEqual(t, out.Values[0].Value, s.Values[0].Value)
}

func TestResponseAddAccumulatesAcrossSeries(t *testing.T) {
	var resp Response
	resp.Add(Series{Name: "a", Values: pts(1, 2)})
	resp.Add(Series{Name: "b", Values: pts(1, 2, 3)})

	require.Equal(t, 5, resp.SampleSize)
	require.Len(t, resp.Results, 2)
}
