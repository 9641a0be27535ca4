package stitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

func videoTrackOf(settings media.VideoSettings, ptsdts ...int64) track.Video {
	samples := make([]media.Sample, len(ptsdts))
	for i, p := range ptsdts {
		samples[i] = media.Sample{PTS: p, DTS: p, Keyframe: i == 0, Type: media.Video}
	}
	return track.Video{
		Settings: settings,
		View: track.New(len(samples), func(i int) (media.Sample, error) {
			return samples[i], nil
		}),
	}
}

func audioTrackOf(settings media.AudioSettings, ptsdts ...int64) track.Audio {
	samples := make([]media.Sample, len(ptsdts))
	for i, p := range ptsdts {
		samples[i] = media.Sample{PTS: p, DTS: p, Keyframe: true, Type: media.Audio}
	}
	return track.Audio{
		Settings: settings,
		View: track.New(len(samples), func(i int) (media.Sample, error) {
			return samples[i], nil
		}),
	}
}

func stdVideoSettings() media.VideoSettings {
	return media.VideoSettings{Codec: "h264", Width: 1280, Height: 720, TimeScale: 30000, Orientation: 0}
}

func TestStitchRejectsEmptyInputs(t *testing.T) {
	_, err := Stitch(nil)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestStitchRejectsSingleFrameVideo(t *testing.T) {
	vs := stdVideoSettings()
	inputs := []Input{{Video: videoTrackOf(vs, 0)}}
	_, err := Stitch(inputs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.Unsupported, merr.Code)
}

func TestStitchRejectsMismatchedVideoSettings(t *testing.T) {
	vs := stdVideoSettings()
	other := vs
	other.Width = 640
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 1000, 2000)},
		{Video: videoTrackOf(other, 0, 1000, 2000)},
	}
	_, err := Stitch(inputs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.SettingsMismatch, merr.Code)
}

func TestStitchVideoOnlyConcatenation(t *testing.T) {
	vs := stdVideoSettings()
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 1000, 2000)},
		{Video: videoTrackOf(vs, 0, 1000, 2000)},
	}
	out, err := Stitch(inputs)
	require.NoError(t, err)
	require.Len(t, out.Video.Samples, 6)
	// first input unshifted
	assert.Equal(t, int64(0), out.Video.Samples[0].PTS)
	assert.Equal(t, int64(1000), out.Video.Samples[1].PTS)
	assert.Equal(t, int64(2000), out.Video.Samples[2].PTS)
	// second input continues from first input's accumulated duration
	assert.True(t, out.Video.Samples[3].PTS >= out.Video.Samples[2].PTS)
	// strictly ascending overall
	for i := 1; i < len(out.Video.Samples); i++ {
		assert.Greater(t, out.Video.Samples[i].PTS, out.Video.Samples[i-1].PTS)
	}
}

func TestStitchRejectsLeadingEmptyBoxOnNonFirstInput(t *testing.T) {
	vs := stdVideoSettings()
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 1000, 2000)},
		{
			Video: videoTrackOf(vs, 0, 1000, 2000),
			EditBoxes: []media.EditBox{
				{StartPTS: media.EmptyEditBox, DurationPTS: 500},
				{StartPTS: 0, DurationPTS: 2000, Rate: 1, Type: media.Video},
			},
		},
	}
	_, err := Stitch(inputs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestStitchAudioRequiresConsistentPresence(t *testing.T) {
	vs := stdVideoSettings()
	as := media.AudioSettings{Codec: "aac", TimeScale: 44100, SampleRate: 44100, Channels: 2}
	a := audioTrackOf(as, 0, 1024, 2048)
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 1000, 2000), Audio: &a},
		{Video: videoTrackOf(vs, 0, 1000, 2000)},
	}
	_, err := Stitch(inputs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestStitchRejectsEmptyAudioTrack(t *testing.T) {
	vs := stdVideoSettings()
	as := media.AudioSettings{Codec: "aac", TimeScale: 44100, SampleRate: 44100, Channels: 2}
	a := audioTrackOf(as)
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 1000, 2000), Audio: &a},
	}
	_, err := Stitch(inputs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestStitchWithAudioAppendsAndTrimsOverhang(t *testing.T) {
	vs := stdVideoSettings()
	as := media.AudioSettings{Codec: "aac", TimeScale: 44100, SampleRate: 44100, Channels: 2}
	a1 := audioTrackOf(as, 0, 1024, 2048, 3072)
	a2 := audioTrackOf(as, 0, 1024, 2048, 3072)
	inputs := []Input{
		{Video: videoTrackOf(vs, 0, 15000, 30000), Audio: &a1},
		{Video: videoTrackOf(vs, 0, 15000, 30000), Audio: &a2},
	}
	out, err := Stitch(inputs)
	require.NoError(t, err)
	require.True(t, out.HasAudio)
	require.NotEmpty(t, out.Audio.Samples)
	for i := 1; i < len(out.Audio.Samples); i++ {
		assert.Greater(t, out.Audio.Samples[i].PTS, out.Audio.Samples[i-1].PTS)
		assert.Greater(t, out.Audio.Samples[i].DTS, out.Audio.Samples[i-1].DTS)
	}
}

func TestRemoveOverlappingKeepsStrictlyIncreasing(t *testing.T) {
	samples := []media.Sample{
		{PTS: 0, DTS: 0},
		{PTS: 100, DTS: 100}, // not below the next kept sample (90), dropped
		{PTS: 90, DTS: 90},
		{PTS: 200, DTS: 200},
	}
	got := removeOverlapping(samples)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{0, 90, 200}, []int64{got[0].PTS, got[1].PTS, got[2].PTS})
}
