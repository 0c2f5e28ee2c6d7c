package clapaudio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToFloatToInt16RoundTripSilence(t *testing.T) {
	require.Equal(t, float32(0), ToFloat(0))
	require.Equal(t, int16(0), ToInt16(0))
}

func TestToInt16ClipsAboveRange(t *testing.T) {
	require.Equal(t, int16(32767), ToInt16(1.5))
	require.Equal(t, int16(-32767), ToInt16(-1.5))
}

func TestToInt16FullScaleIsExact(t *testing.T) {
	// 1.0 * 32767 = 32767 exactly, no rounding ambiguity at full scale.
	require.Equal(t, int16(32767), ToInt16(1.0))
	require.Equal(t, int16(-32767), ToInt16(-1.0))
}

func TestDeinterleaveInterleaveRoundTrip(t *testing.T) {
	in := []int16{100, -200, 300, -400}
	left := make([]float32, 2)
	right := make([]float32, 2)
	Deinterleave(in, 2, left, right)

	require.InDelta(t, 100.0/32768.0, left[0], 1e-6)
	require.InDelta(t, -200.0/32768.0, right[0], 1e-6)

	out := make([]int16, 4)
	Interleave(left, right, 2, out)
	require.Equal(t, in, out)
}

func TestScratchEnsureGrowsAndPreserves(t *testing.T) {
	var s Scratch
	s.Ensure(4)
	require.Len(t, s.InLeft, 4)
	s.InLeft[0] = 9
	s.Ensure(2)
	require.Equal(t, float32(9), s.InLeft[0])
	s.Ensure(8)
	require.Len(t, s.OutRight, 8)
}

func TestZeroHelpers(t *testing.T) {
	f := []float32{1, 2, 3}
	ZeroFloat32(f, 3)
	require.Equal(t, []float32{0, 0, 0}, f)

	i := []int16{1, 2, 3}
	ZeroInt16(i)
	require.Equal(t, []int16{0, 0, 0}, i)
}
