package trim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

func videoSamples(spec ...[2]int64) []media.Sample {
	// spec entries are {pts, dts}; every 5th sample (index%5==0) is a
	// keyframe to mimic a GOP-structured video track.
	out := make([]media.Sample, len(spec))
	for i, s := range spec {
		out[i] = media.Sample{PTS: s[0], DTS: s[1], Keyframe: i%5 == 0, Type: media.Video}
	}
	return out
}

func viewOf(samples []media.Sample) track.View {
	return track.New(len(samples), func(i int) (media.Sample, error) {
		return samples[i], nil
	})
}

func TestTrimRejectsZeroDuration(t *testing.T) {
	v := viewOf(nil)
	_, err := Trim(v, nil, 90000, 0, 0)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestTrimNoEditBoxesClampsToInherentDuration(t *testing.T) {
	samples := videoSamples(
		[2]int64{0, 0}, [2]int64{1000, 1000}, [2]int64{2000, 2000},
		[2]int64{3000, 3000}, [2]int64{4000, 4000},
	)
	v := viewOf(samples)
	res, err := Trim(v, nil, 1000, 0, 10000)
	require.NoError(t, err)
	require.NotEmpty(t, res.Samples)
	assert.Equal(t, int64(0), res.Samples[0].PTS)
}

func TestTrimWithinGOPKeepsLeadingKeyframe(t *testing.T) {
	samples := videoSamples(
		[2]int64{0, 0}, [2]int64{100, 100}, [2]int64{200, 200}, [2]int64{300, 300}, [2]int64{400, 400},
		[2]int64{500, 500}, [2]int64{600, 600},
	)
	v := viewOf(samples)
	// window [300, 600) at timescale=1000 (ms == pts ticks)
	res, err := Trim(v, nil, 1000, 300, 300)
	require.NoError(t, err)
	require.NotEmpty(t, res.Samples)
	// start_keyframe_index must be 0 (the only keyframe at or before 300).
	assert.Equal(t, int64(0), res.Samples[0].PTS)
	assert.True(t, res.Samples[0].Keyframe)
}

func TestTrimEditBoxRewritingEntirelyAfterOffset(t *testing.T) {
	boxes := []media.EditBox{
		{StartPTS: media.EmptyEditBox, DurationPTS: 200},
		{StartPTS: 0, DurationPTS: 1000, Rate: 1, Type: media.Video},
	}
	out, err := rewriteEditBoxes(boxes, 300, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(100), out[0].StartPTS)
	assert.Equal(t, uint64(100), out[0].DurationPTS)
}

func TestTrimEditBoxRewritingStraddlesOffset(t *testing.T) {
	boxes := []media.EditBox{
		{StartPTS: media.EmptyEditBox, DurationPTS: 200},
		{StartPTS: 0, DurationPTS: 1000, Rate: 1, Type: media.Video},
	}
	out, err := rewriteEditBoxes(boxes, 100, 300)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Empty())
	assert.Equal(t, uint64(100), out[0].DurationPTS) // track_offset(200) - start_pts(100)
	assert.Equal(t, int64(0), out[1].StartPTS)
}

func TestTrimEditBoxRewritingEntirelyInSilence(t *testing.T) {
	boxes := []media.EditBox{
		{StartPTS: media.EmptyEditBox, DurationPTS: 500},
		{StartPTS: 0, DurationPTS: 1000, Rate: 1, Type: media.Video},
	}
	out, err := rewriteEditBoxes(boxes, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTrimRequiresFirstDTSCoverage(t *testing.T) {
	// Only keyframe is at pts=500, but window starts at pts=0: no
	// keyframe covers the window start, so GOP selection fails and the
	// result is empty rather than erroring (spec: invalid GOP -> empty
	// output, not a hard failure).
	samples := []media.Sample{
		{PTS: 500, DTS: 500, Keyframe: true, Type: media.Video},
		{PTS: 600, DTS: 600, Type: media.Video},
	}
	v := viewOf(samples)
	res, err := Trim(v, nil, 1000, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, res.Samples)
}
