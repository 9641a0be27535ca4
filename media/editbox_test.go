package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		assert.True(t, Valid(nil))
	})

	t.Run("single empty box", func(t *testing.T) {
		assert.True(t, Valid([]EditBox{{StartPTS: EmptyEditBox, DurationPTS: 100}}))
	})

	t.Run("empty box must be first", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 10, Type: Video},
			{StartPTS: EmptyEditBox, DurationPTS: 5, Type: Video},
		}
		assert.False(t, Valid(boxes))
	})

	t.Run("at most one empty box", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: EmptyEditBox, DurationPTS: 5, Type: Video},
			{StartPTS: EmptyEditBox, DurationPTS: 5, Type: Video},
		}
		assert.False(t, Valid(boxes))
	})

	t.Run("mismatched types rejected", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 10, Type: Video},
			{StartPTS: 10, DurationPTS: 10, Type: Audio},
		}
		assert.False(t, Valid(boxes))
	})

	t.Run("overlapping intervals rejected", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 10, Type: Video},
			{StartPTS: 5, DurationPTS: 10, Type: Video},
		}
		assert.False(t, Valid(boxes))
	})

	t.Run("adjacent intervals accepted", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 10, Type: Video},
			{StartPTS: 10, DurationPTS: 10, Type: Video},
		}
		assert.True(t, Valid(boxes))
	})

	t.Run("leading empty plus ascending non-empty", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: EmptyEditBox, DurationPTS: 1000},
			{StartPTS: 0, DurationPTS: 500, Type: Video},
		}
		assert.True(t, Valid(boxes))
	})
}

func TestRealPtsAndPlays(t *testing.T) {
	t.Run("empty boxes is identity", func(t *testing.T) {
		require.Equal(t, int64(42), RealPts(nil, 42))
		assert.True(t, Plays(nil, 42))
	})

	t.Run("outside every interval is invisible", func(t *testing.T) {
		boxes := []EditBox{{StartPTS: 100, DurationPTS: 50, Type: Video}}
		assert.Equal(t, int64(-1), RealPts(boxes, 50))
		assert.False(t, Plays(boxes, 50))
	})

	t.Run("inside interval maps relative to box start", func(t *testing.T) {
		boxes := []EditBox{{StartPTS: 100, DurationPTS: 50, Type: Video}}
		assert.Equal(t, int64(10), RealPts(boxes, 110))
		assert.True(t, Plays(boxes, 110))
	})

	t.Run("leading empty box offsets subsequent intervals", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: EmptyEditBox, DurationPTS: 200},
			{StartPTS: 1000, DurationPTS: 500, Type: Video},
		}
		assert.Equal(t, int64(200), RealPts(boxes, 1000))
		assert.Equal(t, int64(250), RealPts(boxes, 1050))
		assert.Equal(t, int64(-1), RealPts(boxes, 1500))
	})

	t.Run("second kept interval accumulates first interval's duration", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 100, Type: Video},
			{StartPTS: 200, DurationPTS: 100, Type: Video},
		}
		assert.Equal(t, int64(100), RealPts(boxes, 200))
		assert.Equal(t, int64(150), RealPts(boxes, 250))
	})

	t.Run("invariant 1: plays iff real_pts != -1", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: EmptyEditBox, DurationPTS: 200},
			{StartPTS: 1000, DurationPTS: 500, Type: Video},
		}
		for _, pts := range []int64{0, 500, 999, 1000, 1249, 1500, 2000} {
			assert.Equal(t, RealPts(boxes, pts) != -1, Plays(boxes, pts))
		}
	})
}

func TestShift(t *testing.T) {
	t.Run("non-empty box shifts start", func(t *testing.T) {
		b := EditBox{StartPTS: 10, DurationPTS: 5, Rate: 1, Type: Video}
		got := b.Shift(100)
		assert.Equal(t, int64(110), got.StartPTS)
		assert.Equal(t, uint64(5), got.DurationPTS)
	})

	t.Run("empty box is a no-op", func(t *testing.T) {
		b := EditBox{StartPTS: EmptyEditBox, DurationPTS: 5}
		got := b.Shift(100)
		assert.Equal(t, EmptyEditBox, got.StartPTS)
		assert.Equal(t, uint64(5), got.DurationPTS)
	})
}

func TestRoundDivide(t *testing.T) {
	assert.Equal(t, int64(5), RoundDivide(10, 1, 2))
	assert.Equal(t, int64(1), RoundDivide(1, 1, 2)) // (1*1+1)/2 = 1
	assert.Equal(t, int64(-5), RoundDivide(-10, 1, 2))
	assert.Equal(t, int64(90000), RoundDivide(45000, 90000, 45000))
}

func TestFrameIntervals(t *testing.T) {
	t.Run("empty track", func(t *testing.T) {
		got := FrameIntervals(nil, nil)
		assert.Equal(t, []Interval{{StartIndex: 0, NumFrames: 0}}, got)
	})

	t.Run("no boxes spans whole track", func(t *testing.T) {
		samples := []Sample{{PTS: 0}, {PTS: 1}, {PTS: 2}}
		got := FrameIntervals(nil, samples)
		assert.Equal(t, []Interval{{StartIndex: 0, NumFrames: 3}}, got)
	})

	t.Run("split intervals", func(t *testing.T) {
		boxes := []EditBox{
			{StartPTS: 0, DurationPTS: 1000, Type: Video},
			{StartPTS: 2000, DurationPTS: 1000, Type: Video},
		}
		samples := []Sample{
			{PTS: 0}, {PTS: 500}, {PTS: 1000}, {PTS: 1500}, {PTS: 2000}, {PTS: 2500},
		}
		got := FrameIntervals(boxes, samples)
		require.Len(t, got, 2)
		assert.Equal(t, Interval{StartIndex: 0, NumFrames: 2}, got[0])
		assert.Equal(t, Interval{StartIndex: 4, NumFrames: 2}, got[1])
	})
}
