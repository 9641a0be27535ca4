package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/reel/media"
)

func samplesView(pts ...int64) View {
	samples := make([]media.Sample, len(pts))
	for i, p := range pts {
		samples[i] = media.Sample{PTS: p, DTS: p}
	}
	return New(len(samples), func(i int) (media.Sample, error) {
		return samples[i], nil
	})
}

func TestViewBoundsAndAt(t *testing.T) {
	v := samplesView(0, 1, 2, 3)
	a, b := v.Bounds()
	assert.Equal(t, 0, a)
	assert.Equal(t, 4, b)
	assert.Equal(t, 4, v.Count())

	s, err := v.At(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.PTS)

	_, err = v.At(4)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.OutOfRange, merr.Code)
}

func TestViewSub(t *testing.T) {
	v := samplesView(0, 1, 2, 3, 4)
	sub, err := v.Sub(1, 3)
	require.NoError(t, err)
	a, b := sub.Bounds()
	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)
	assert.Equal(t, 2, sub.Count())

	samples, err := sub.Vectorize()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1), samples[0].PTS)
	assert.Equal(t, int64(2), samples[1].PTS)

	_, err = v.Sub(4, 10)
	require.Error(t, err)
}

func TestViewFilter(t *testing.T) {
	v := samplesView(0, 1, 2, 3, 4, 5)
	even := v.Filter(func(s media.Sample) bool { return s.PTS%2 == 0 })
	samples, err := even.Vectorize()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []int64{0, 2, 4}, []int64{samples[0].PTS, samples[1].PTS, samples[2].PTS})
}

func TestDuration(t *testing.T) {
	samples := []media.Sample{{DTS: 0}, {DTS: 10}, {DTS: 20}, {DTS: 35}}
	got, err := Duration(samples)
	require.NoError(t, err)
	// deltas: 10, 10, 15 -> median 10; total delta sum 35 + median 10 = 45
	assert.Equal(t, uint64(45), got)
}

func TestDurationRejectsEmpty(t *testing.T) {
	_, err := Duration(nil)
	require.Error(t, err)
}

func TestDurationRejectsDecreasingDTS(t *testing.T) {
	samples := []media.Sample{{DTS: 10}, {DTS: 5}}
	_, err := Duration(samples)
	require.Error(t, err)
}

func TestFPS(t *testing.T) {
	assert.InDelta(t, 30.0, FPS(300, 9000, 90000), 0.001)
	assert.Equal(t, float64(0), FPS(10, 9000, 0))
}
